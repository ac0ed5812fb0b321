package storage

import (
	"context"
	"io"
)

// MockBackend is a mock implementation of Backend for testing
type MockBackend struct {
	NameValue string
	WriteFunc func(ctx context.Context, name string, data []byte) (string, error)
	OpenFunc  func(ctx context.Context, location string) (io.ReadCloser, error)
}

func (m *MockBackend) Name() string {
	if m.NameValue != "" {
		return m.NameValue
	}
	return "mock"
}

func (m *MockBackend) Write(ctx context.Context, name string, data []byte) (string, error) {
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, name, data)
	}
	return "", nil
}

func (m *MockBackend) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if m.OpenFunc != nil {
		return m.OpenFunc(ctx, location)
	}
	return nil, nil
}

// MockResolver is a mock implementation of Resolver for testing
type MockResolver struct {
	InsertFunc     func(ctx context.Context, values Values) (string, error)
	OpenOutputFunc func(ctx context.Context, uri string) (io.WriteCloser, error)
	PublishFunc    func(ctx context.Context, uri string) error
	DeleteFunc     func(ctx context.Context, uri string) error
	OpenInputFunc  func(ctx context.Context, uri string) (io.ReadCloser, error)
}

func (m *MockResolver) Insert(ctx context.Context, values Values) (string, error) {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, values)
	}
	return "", nil
}

func (m *MockResolver) OpenOutput(ctx context.Context, uri string) (io.WriteCloser, error) {
	if m.OpenOutputFunc != nil {
		return m.OpenOutputFunc(ctx, uri)
	}
	return nil, nil
}

func (m *MockResolver) Publish(ctx context.Context, uri string) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, uri)
	}
	return nil
}

func (m *MockResolver) Delete(ctx context.Context, uri string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, uri)
	}
	return nil
}

func (m *MockResolver) OpenInput(ctx context.Context, uri string) (io.ReadCloser, error) {
	if m.OpenInputFunc != nil {
		return m.OpenInputFunc(ctx, uri)
	}
	return nil, nil
}

// StaticCapability is a fixed Capability for testing
type StaticCapability bool

func (c StaticCapability) ModernStorageAvailable() bool {
	return bool(c)
}
