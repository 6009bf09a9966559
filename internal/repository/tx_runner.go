package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/lexis/internal/service"
)

// Store provides pool-backed and transactional repositories over Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Documents() service.DocumentRepository {
	return NewDocumentRepository(s.pool)
}

func (s *Store) Fragments() service.FragmentIndex {
	return NewFragmentRepository(s.pool)
}

func (s *Store) Conversations() service.ConversationRepository {
	return NewConversationRepository(s.pool)
}

func (s *Store) Settings() service.IndexSettingsRepository {
	return NewIndexSettingsRepository(s.pool)
}

func (s *Store) WithTx(ctx context.Context, fn func(repos service.TxRepositories) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}

	repos := &txRepos{tx: tx}
	if err := fn(repos); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}

type txRepos struct {
	tx pgx.Tx
}

func (r *txRepos) Documents() service.DocumentRepository {
	return NewDocumentRepositoryWithTx(r.tx)
}

func (r *txRepos) Fragments() service.FragmentIndex {
	return NewFragmentRepositoryWithTx(r.tx)
}

func (r *txRepos) Conversations() service.ConversationRepository {
	return NewConversationRepositoryWithTx(r.tx)
}

func (r *txRepos) Settings() service.IndexSettingsRepository {
	return NewIndexSettingsRepositoryWithTx(r.tx)
}
