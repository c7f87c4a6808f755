package checkpoint

import "context"

// TamperStateJSONForTest overwrites a row's state_json without recomputing
// its checksum, simulating a torn write. Exported only through this
// _test.go shim so it never reaches the production build.
func TamperStateJSONForTest(s *Store, sessionID string) error {
	_, err := s.pool.Exec(context.Background(),
		`UPDATE sessions SET state_json = '{"id":"tampered"}'::jsonb WHERE id = $1`, sessionID)
	return err
}
