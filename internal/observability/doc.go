// Package observability records engine diagnostics in an append-only JSONL
// event log, derives week metrics and health alerts from it, and delivers
// reminders and alerts to Slack.
package observability
