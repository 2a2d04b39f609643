// Package mocks provides mock implementations for testing the greeter job engine.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our port interfaces.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	driver := mocks.NewMockMessagingDriver(ctrl)
//	driver.EXPECT().IsConnected(gomock.Any(), gomock.Any()).Return(true)
package mocks

// Generate mock for MessagingDriver interface from internal/core package.
// This creates MockMessagingDriver with methods for all MessagingDriver interface methods:
// Connect, IsConnected, Reconnect, DiscoverNewFollowers, SendMessage, Close
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=messaging_driver_mock.go github.com/target/greeter-api/internal/core MessagingDriver

// Generate mock for ProcessedRecordStore interface from internal/core package.
// This creates MockProcessedRecordStore with methods: Exists, Record
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=processed_record_store_mock.go github.com/target/greeter-api/internal/core ProcessedRecordStore

// Generate mock for CredentialsResolver interface from internal/core package.
// This creates MockCredentialsResolver with methods: Resolve
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=credentials_resolver_mock.go github.com/target/greeter-api/internal/core CredentialsResolver
