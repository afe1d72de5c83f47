package storage

import (
	_ "embed"
)

const (
	insertSessionSQL = `
INSERT INTO sessions (
                      run_id,
                      start_time,
                      source_type,
                      source_id,
                      config)
VALUES (?, ?, ?, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    run_id,
    start_time,
    source_type,
    source_id,
    config
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    run_id,
    start_time,
    source_type,
    source_id,
    config
FROM sessions
ORDER BY start_time, id`

	insertRecordSQL = `
INSERT INTO records (
                     session_id,
                     timestamp,
                     mac,
                     rssi,
                     channel,
                     secondary_channel,
                     subcarriers,
                     raw_iq,
                     amplitude,
                     phase,
                     significant)
VALUES `

	insertRecordPlaceholder = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

	insertRecordParams = 11

	selectRecordsSQL = `
SELECT
    timestamp,
    mac,
    rssi,
    channel,
    secondary_channel,
    subcarriers,
    raw_iq,
    amplitude,
    phase,
    significant
FROM records
WHERE
    session_id = ?
    AND timestamp >= ?
    AND timestamp <= ?
    AND (? = '' OR mac = ?)
ORDER BY timestamp, id`

	countRecordsSQL = `
SELECT COUNT(*)
FROM records
WHERE
    session_id = ?`

	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_records_session_time ON records (session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_records_session_mac ON records (session_id, mac);`
)

//go:embed schema.sql
var initSchemaSQL string
