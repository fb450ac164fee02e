// Package core defines the shared domain model of the write pipeline.
//
// Structure:
//
//	run.go      - Run state machine and run totals
//	record.go   - Record, record status and action
//	sync.go     - SyncConfig, stream metadata, unique identifier config
//	mapping.go  - Mapping rules and parsed destination paths
//	report.go   - Tracking reports and connector messages
//	errors.go   - Coded errors and run-level sentinels
package core
