// Package mocks provides gomock implementations of the engine interfaces.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	ledger := mocks.NewMockLedger(ctrl)
//	ledger.EXPECT().Get(gomock.Any(), "inst-1", "upload").Return(nil, nil)
package mocks

// Generate mock for the Ledger interface from internal/engine/domain.
// This creates MockLedger with methods for all Ledger interface methods:
// Get, TryBeginAttempt, CommitSuccess, CommitFailure, BindInstance, GetInstance, ListEntries
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ledger_mock.go github.com/cuongbtq/meeting-jobs/internal/engine/domain Ledger
