package service

import "context"

// TxRepositories provides transaction-bound repositories.
type TxRepositories interface {
	Documents() DocumentRepository
	Fragments() FragmentIndex
	Conversations() ConversationRepository
	Settings() IndexSettingsRepository
}

// TxRunner executes a function within a transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}

// Store is a persistence backend. The embedded repositories run outside any
// transaction; WithTx hands out repositories bound to one.
type Store interface {
	TxRepositories
	TxRunner
}
