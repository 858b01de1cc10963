//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"

	audit "provenance/pkg/platform/audit"
	"provenance/pkg/testutil/containers"
)

type AuditStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	db    *sql.DB
	store *Store
}

func TestAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())

	schema, err := os.ReadFile("schema.sql")
	s.Require().NoError(err)
	s.pg.ApplySchema(s.T(), string(schema))

	s.db, err = sql.Open("postgres", s.pg.DSN)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = s.db.Close() })

	s.store = New(s.db)
}

func (s *AuditStoreSuite) SetupTest() {
	_, err := s.db.ExecContext(context.Background(), "TRUNCATE audit_events")
	s.Require().NoError(err)
}

func (s *AuditStoreSuite) TestAppendAndListByDocument() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	events := []audit.Event{
		{
			Category:   audit.CategoryOperations,
			Timestamp:  base,
			DocumentID: "doc-1",
			Actor:      "alice",
			Action:     string(audit.EventDocumentClaimed),
		},
		{
			Category:   audit.CategoryCompliance,
			Timestamp:  base.Add(time.Second),
			DocumentID: "doc-1",
			Actor:      "alice",
			Action:     string(audit.EventDocumentApproved),
			Decision:   "approved",
			TxID:       "tx-1",
			RequestID:  "req-1",
		},
		{
			Category:   audit.CategoryOperations,
			Timestamp:  base,
			DocumentID: "doc-2",
			Actor:      "bob",
			Action:     string(audit.EventDocumentClaimed),
		},
	}
	for _, event := range events {
		s.Require().NoError(s.store.Append(ctx, event))
	}

	got, err := s.store.ListByDocument(ctx, "doc-1")
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(string(audit.EventDocumentClaimed), got[0].Action)
	s.Equal(string(audit.EventDocumentApproved), got[1].Action)
	s.Equal(audit.CategoryCompliance, got[1].Category)
	s.Equal("tx-1", got[1].TxID)
}

func (s *AuditStoreSuite) TestCategoryDefaultedFromAction() {
	ctx := context.Background()
	event := audit.Event{
		Timestamp:  time.Now().UTC().Truncate(time.Microsecond),
		DocumentID: "doc-1",
		Actor:      "system",
		Action:     string(audit.EventIntegrityViolation),
	}
	s.Require().NoError(s.store.Append(ctx, event))

	got, err := s.store.ListByDocument(ctx, "doc-1")
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(audit.EventIntegrityViolation.Category(), got[0].Category)
}

func (s *AuditStoreSuite) TestListRecent() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	for i := 0; i < 5; i++ {
		s.Require().NoError(s.store.Append(ctx, audit.Event{
			Category:   audit.CategoryOperations,
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			DocumentID: "doc-1",
			Actor:      "alice",
			Action:     string(audit.EventVerificationSubmitted),
		}))
	}

	got, err := s.store.ListRecent(ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.True(got[0].Timestamp.After(got[1].Timestamp))
}
