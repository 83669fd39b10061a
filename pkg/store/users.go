package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/gocql/gocql"

	"github.com/threadline/chat-relay/pkg/db"
	"github.com/threadline/chat-relay/pkg/snowflake"
)

// User is the local record behind an external identity reference.
type User struct {
	ID          int64
	ExternalID  string
	DisplayName string
	Handle      string
}

// Users maps external identity references to local numeric user ids, creating
// the record lazily on first sight.
type Users struct {
	session *db.Session
	ids     *snowflake.Generator
}

func NewUsers(session *db.Session, ids *snowflake.Generator) *Users {
	return &Users{session: session, ids: ids}
}

// GetOrCreate looks up the user for an external reference, creating it with a
// fresh id if absent. The insert uses a lightweight transaction so concurrent
// first connections of the same user converge on one record.
func (s *Users) GetOrCreate(ctx context.Context, externalID, displayName, handle string) (User, error) {
	u := User{ExternalID: externalID}

	const sel = `SELECT user_id, display_name, handle FROM users WHERE external_id = ?`
	err := s.session.Query(sel, externalID).WithContext(ctx).Scan(&u.ID, &u.DisplayName, &u.Handle)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, gocql.ErrNotFound) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	u.ID = s.ids.NextID()
	u.DisplayName = displayName
	u.Handle = handle

	const ins = `INSERT INTO users (external_id, user_id, display_name, handle)
		VALUES (?, ?, ?, ?) IF NOT EXISTS`
	prev := map[string]interface{}{}
	applied, err := s.session.Query(ins, externalID, u.ID, displayName, handle).
		WithContext(ctx).MapScanCAS(prev)
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	if !applied {
		// Lost the race; another connection created the record first.
		if id, ok := prev["user_id"].(int64); ok {
			u.ID = id
		}
		if v, ok := prev["display_name"].(string); ok {
			u.DisplayName = v
		}
		if v, ok := prev["handle"].(string); ok {
			u.Handle = v
		}
	}
	return u, nil
}
