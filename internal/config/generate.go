package config

import (
	"fmt"
	"os"
)

const starterConfig = `# PrintWarden configuration.

server:
  port: 6878
  cors: false
  log_level: info

# Budget store backend. The rest driver talks to a Firebase-style JSON API;
# the sqlite driver keeps budgets in a local database file.
store:
  driver: sqlite
  path: ./printwarden.db
  # driver: rest
  # url: https://example.firebaseio.com
  # auth_token: ""
  timeout: 10s

spooler:
  driver: cups
  command_timeout: 5s

monitor:
  poll_interval: 1s
  printer_pause: true

session:
  sync_interval: 60s
  warn_thresholds: [300, 60]

# Fallback per-page prices, used when the metadata document is unreachable.
pricing:
  default_black_white: 1.0
  default_color: 2.0

recovery:
  journal_path: ./printwarden-recovery.db

kill_switch:
  sentinel_path: ./STOP_SESSION

# alerts:
#   webhook:
#     url: https://admin.example.com/hooks/printwarden
#     secret: ""

# print_rules:
#   - name: page-limit
#     condition: job.pages > 50
#     effect: deny
#     message: jobs over 50 pages need staff approval
`

// GenerateDefault writes a commented starter config file to path. Fails if
// the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	return os.WriteFile(path, []byte(starterConfig), 0644)
}
