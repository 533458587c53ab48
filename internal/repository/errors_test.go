package repository

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"no rows", sql.ErrNoRows, ErrNotFound},
		{"foreign key", &mysql.MySQLError{Number: 1452, Message: "fk"}, ErrInvalidReference},
		{"duplicate", &mysql.MySQLError{Number: 1062, Message: "dup"}, ErrConflict},
		{"deadlock", &mysql.MySQLError{Number: 1213, Message: "deadlock"}, ErrConflict},
		{"sentinel passthrough", ErrStatusChanged, ErrStatusChanged},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classify("op", tc.in); !errors.Is(got, tc.want) {
				t.Fatalf("classify = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestClassifyWrapsUnknownErrors(t *testing.T) {
	boom := errors.New("connection reset")
	got := classify("find reservation", boom)
	var se *StorageError
	if !errors.As(got, &se) {
		t.Fatalf("classify = %T, want *StorageError", got)
	}
	if se.Op != "find reservation" || !errors.Is(got, boom) {
		t.Fatalf("unexpected storage error %v", se)
	}
	if classify("op", nil) != nil {
		t.Fatal("nil error classified")
	}
}
