package migrations

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

var testMigrations = []*Migration{
	{
		ID:      "001_test",
		Name:    "001_test",
		UpSQL:   "CREATE TABLE test1 (id INTEGER);",
		DownSQL: "DROP TABLE test1;",
	},
	{
		ID:      "002_test",
		Name:    "002_test",
		UpSQL:   "CREATE TABLE test2 (id INTEGER);",
		DownSQL: "DROP TABLE test2;",
	},
}

func TestNew(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock DB: %v", err)
	}
	defer db.Close()

	migrator := New(db)
	if migrator == nil {
		t.Fatal("Expected migrator to be created, got nil")
	}
	if migrator.db != db {
		t.Error("Expected migrator to have the provided DB connection")
	}
}

func TestAllMigrations(t *testing.T) {
	seen := make(map[string]bool)
	for _, m := range All {
		if m.Name == "" || m.UpSQL == "" || m.DownSQL == "" {
			t.Errorf("Migration %q is incomplete", m.ID)
		}
		if seen[m.Name] {
			t.Errorf("Duplicate migration name %q", m.Name)
		}
		seen[m.Name] = true
	}

	if !strings.Contains(WorkerStats.UpSQL, "worker_stats") {
		t.Error("Expected first migration to create worker_stats")
	}
}

func TestMigratorInitialize(t *testing.T) {
	tests := []struct {
		name        string
		setupMock   func(sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name: "successful initialization",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`CREATE TABLE IF NOT EXISTS migrations`).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
		},
		{
			name: "database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`CREATE TABLE IF NOT EXISTS migrations`).
					WillReturnError(sql.ErrConnDone)
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("Failed to create mock DB: %v", err)
			}
			defer db.Close()

			tt.setupMock(mock)

			err = New(db).Initialize(context.Background())

			if tt.expectError && err == nil {
				t.Error("Expected error, got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("Unmet expectations: %v", err)
			}
		})
	}
}

func TestMigratorApply(t *testing.T) {
	migration := testMigrations[0]

	tests := []struct {
		name        string
		setupMock   func(sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name: "successful migration application",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`CREATE TABLE test1`).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(`INSERT INTO migrations`).
					WithArgs("001_test").
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "begin transaction error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin().WillReturnError(sql.ErrConnDone)
			},
			expectError: true,
		},
		{
			name: "migration execution error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`CREATE TABLE test1`).
					WillReturnError(sql.ErrConnDone)
				mock.ExpectRollback()
			},
			expectError: true,
		},
		{
			name: "record migration error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`CREATE TABLE test1`).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(`INSERT INTO migrations`).
					WithArgs("001_test").
					WillReturnError(sql.ErrConnDone)
				mock.ExpectRollback()
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("Failed to create mock DB: %v", err)
			}
			defer db.Close()

			tt.setupMock(mock)

			err = New(db).Apply(context.Background(), migration)

			if tt.expectError && err == nil {
				t.Error("Expected error, got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("Unmet expectations: %v", err)
			}
		})
	}
}

func TestMigratorRevert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock DB: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE test1`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM migrations WHERE name`).
		WithArgs("001_test").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := New(db).Revert(context.Background(), testMigrations[0]); err != nil {
		t.Fatalf("Revert() failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestMigratorMigrate(t *testing.T) {
	tests := []struct {
		name        string
		setupMock   func(sqlmock.Sqlmock)
		wantApplied []string
		expectError bool
	}{
		{
			name: "apply all pending",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`CREATE TABLE IF NOT EXISTS migrations`).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`SELECT name FROM migrations`).
					WillReturnRows(sqlmock.NewRows([]string{"name"}))
				for _, m := range testMigrations {
					mock.ExpectBegin()
					mock.ExpectExec(`CREATE TABLE`).WillReturnResult(sqlmock.NewResult(0, 0))
					mock.ExpectExec(`INSERT INTO migrations`).
						WithArgs(m.Name).
						WillReturnResult(sqlmock.NewResult(1, 1))
					mock.ExpectCommit()
				}
			},
			wantApplied: []string{"001_test", "002_test"},
		},
		{
			name: "skip already applied",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`CREATE TABLE IF NOT EXISTS migrations`).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`SELECT name FROM migrations`).
					WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("001_test"))
				mock.ExpectBegin()
				mock.ExpectExec(`CREATE TABLE test2`).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(`INSERT INTO migrations`).
					WithArgs("002_test").
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectCommit()
			},
			wantApplied: []string{"002_test"},
		},
		{
			name: "nothing pending",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`CREATE TABLE IF NOT EXISTS migrations`).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`SELECT name FROM migrations`).
					WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("001_test").AddRow("002_test"))
			},
			wantApplied: nil,
		},
		{
			name: "initialize error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`CREATE TABLE IF NOT EXISTS migrations`).
					WillReturnError(sql.ErrConnDone)
			},
			expectError: true,
		},
		{
			name: "query error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`CREATE TABLE IF NOT EXISTS migrations`).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`SELECT name FROM migrations`).
					WillReturnError(sql.ErrConnDone)
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("Failed to create mock DB: %v", err)
			}
			defer db.Close()

			tt.setupMock(mock)

			applied, err := New(db).Migrate(context.Background(), testMigrations)

			if tt.expectError {
				if err == nil {
					t.Error("Expected error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}

			if strings.Join(applied, ",") != strings.Join(tt.wantApplied, ",") {
				t.Errorf("Applied = %v, want %v", applied, tt.wantApplied)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("Unmet expectations: %v", err)
			}
		})
	}
}

func TestMigratorRollback(t *testing.T) {
	t.Run("rolls back last applied", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("Failed to create mock DB: %v", err)
		}
		defer db.Close()

		mock.ExpectQuery(`SELECT name FROM migrations`).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("001_test").AddRow("002_test"))
		mock.ExpectBegin()
		mock.ExpectExec(`DROP TABLE test2`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`DELETE FROM migrations WHERE name`).
			WithArgs("002_test").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		name, err := New(db).Rollback(context.Background(), testMigrations)
		if err != nil {
			t.Fatalf("Rollback() failed: %v", err)
		}
		if name != "002_test" {
			t.Errorf("Expected 002_test to be rolled back, got %s", name)
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Unmet expectations: %v", err)
		}
	})

	t.Run("nothing applied", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("Failed to create mock DB: %v", err)
		}
		defer db.Close()

		mock.ExpectQuery(`SELECT name FROM migrations`).
			WillReturnRows(sqlmock.NewRows([]string{"name"}))

		if _, err := New(db).Rollback(context.Background(), testMigrations); err == nil {
			t.Error("Expected error when nothing to rollback")
		}
	})
}

func TestMigratorStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock DB: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT name FROM migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("001_test"))

	statuses, err := New(db).Status(context.Background(), testMigrations)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}

	if len(statuses) != 2 {
		t.Fatalf("Expected 2 statuses, got %d", len(statuses))
	}
	if !statuses[0].Applied || statuses[0].Name != "001_test" {
		t.Errorf("Expected 001_test applied, got %+v", statuses[0])
	}
	if statuses[1].Applied {
		t.Errorf("Expected 002_test pending, got %+v", statuses[1])
	}
}
