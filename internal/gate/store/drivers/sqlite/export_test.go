package sqlite

func DeleteUserForTest(s *Store, id string) error {
	_, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	return err
}
