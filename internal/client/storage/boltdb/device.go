package boltdb

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var deviceIDKey = []byte("device_id")

// DeviceID возвращает fingerprint клиента, при первом вызове создаёт его
func (s *Storage) DeviceID(ctx context.Context) (string, error) {
	var id string

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketDevice)
		if bucket == nil {
			return fmt.Errorf("device bucket not found")
		}

		if stored := bucket.Get(deviceIDKey); stored != nil {
			id = string(stored)
			return nil
		}

		id = "cli-" + uuid.NewString()
		if err := bucket.Put(deviceIDKey, []byte(id)); err != nil {
			return fmt.Errorf("failed to save device id: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to get device id: %w", err)
	}

	return id, nil
}
