package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rishabh1721/WanderLust/internal/models"
)

func TestStrToUint(t *testing.T) {
	cases := []struct {
		in      string
		want    uint
		wantErr bool
	}{
		{"0", 0, false},
		{"42", 42, false},
		{"", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
		{"4.2", 0, true},
	}
	for _, tc := range cases {
		got, err := StrToUint(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("StrToUint(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("StrToUint(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("StrToUint(%q): got %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	t.Run("unique violation code", func(t *testing.T) {
		err := &pgconn.PgError{Code: "23505"}
		if !isUniqueViolation(err) {
			t.Error("23505 should be detected")
		}
	})

	t.Run("wrapped", func(t *testing.T) {
		err := fmt.Errorf("create conversation: %w", &pgconn.PgError{Code: "23505"})
		if !isUniqueViolation(err) {
			t.Error("wrapped 23505 should be detected")
		}
	})

	t.Run("other pg error", func(t *testing.T) {
		if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
			t.Error("foreign key violation is not a unique violation")
		}
	})

	t.Run("plain error", func(t *testing.T) {
		if isUniqueViolation(errors.New("boom")) {
			t.Error("plain errors are not unique violations")
		}
		if isUniqueViolation(nil) {
			t.Error("nil is not a unique violation")
		}
	})
}

func TestRecoverDuplicate(t *testing.T) {
	duplicate := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	winner := &models.Conversation{BaseModel: models.BaseModel{ID: 3}}

	t.Run("returns the race winner on a duplicate key", func(t *testing.T) {
		conv, created, err := recoverDuplicate(duplicate, func() (*models.Conversation, error) {
			return winner, nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if created {
			t.Error("the winner already existed")
		}
		if conv == nil || conv.ID != 3 {
			t.Errorf("conversation: %+v", conv)
		}
	})

	t.Run("surfaces the insert error when the re-query fails", func(t *testing.T) {
		_, _, err := recoverDuplicate(duplicate, func() (*models.Conversation, error) {
			return nil, errors.New("connection lost")
		})
		if err == nil || !errors.Is(err, duplicate) {
			t.Errorf("expected the original insert error, got %v", err)
		}
	})

	t.Run("does not recover other errors", func(t *testing.T) {
		insertErr := errors.New("deadlock")
		_, _, err := recoverDuplicate(insertErr, func() (*models.Conversation, error) {
			t.Error("find must not run for a non-duplicate error")
			return nil, nil
		})
		if err == nil || !errors.Is(err, insertErr) {
			t.Errorf("expected the original insert error, got %v", err)
		}
	})
}
