package config

var defaults = map[string]any{
	"backend_base_url": "",
	"api_key":          "",

	"scanner_id":     "Scanner-01",
	"uuid_prefix":    "",
	"allowlist_file": "",

	"scan_interval_seconds": 5,
	"sync_interval_seconds": 30,

	"log_path":     "./attendance_log.jsonl",
	"keep_records": 100,

	"registration_ttl_seconds": 60,

	"log_level":   "info",
	"listen_addr": ":5000",

	"allowed_networks": "",

	"email.host":     "",
	"email.port":     25,
	"email.username": "",
	"email.password": "",
	"email.from":     "noreply@example.com",

	"alert_to":             []string{},
	"alert_after_failures": 3,
}

func Defaults() map[string]any {
	values := make(map[string]any)
	for k, v := range defaults {
		values[k] = v
	}
	return values
}
