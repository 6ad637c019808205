package service

import (
	"context"
	"sync"

	"github.com/bigkaa/goartstore/filevault/internal/domain/model"
	"github.com/bigkaa/goartstore/filevault/internal/repository"
)

// --- Mock repositories ---

// mockFileRepo — мок FileRepository для unit-тестов.
type mockFileRepo struct {
	insertFn            func(ctx context.Context, f *model.FileRecord) error
	findByIDFn          func(ctx context.Context, id int64) (*model.FileRecord, error)
	findByHashFn        func(ctx context.Context, hash string) (*model.FileRecord, error)
	findByStoragePathFn func(ctx context.Context, path string) (*model.FileRecord, error)
	queryFn             func(ctx context.Context, params repository.QueryParams) ([]*model.FileRecord, int, error)
	updateFn            func(ctx context.Context, id int64, upd model.FileUpdate) (*model.FileRecord, error)
	deleteFn            func(ctx context.Context, id int64) (*model.FileRecord, error)
}

func (m *mockFileRepo) Insert(ctx context.Context, f *model.FileRecord) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, f)
	}
	return nil
}

func (m *mockFileRepo) FindByID(ctx context.Context, id int64) (*model.FileRecord, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockFileRepo) FindByHash(ctx context.Context, hash string) (*model.FileRecord, error) {
	if m.findByHashFn != nil {
		return m.findByHashFn(ctx, hash)
	}
	return nil, repository.ErrNotFound
}

func (m *mockFileRepo) FindByStoragePath(ctx context.Context, path string) (*model.FileRecord, error) {
	if m.findByStoragePathFn != nil {
		return m.findByStoragePathFn(ctx, path)
	}
	return nil, repository.ErrNotFound
}

func (m *mockFileRepo) Query(ctx context.Context, params repository.QueryParams) ([]*model.FileRecord, int, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, params)
	}
	return nil, 0, nil
}

func (m *mockFileRepo) Update(ctx context.Context, id int64, upd model.FileUpdate) (*model.FileRecord, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, upd)
	}
	return nil, repository.ErrNotFound
}

func (m *mockFileRepo) Delete(ctx context.Context, id int64) (*model.FileRecord, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

// mockObjectRepo — мок ObjectRepository.
type mockObjectRepo struct {
	claimFn   func(ctx context.Context, obj *model.StoredObject) error
	acquireFn func(ctx context.Context, hash string) (*model.StoredObject, error)
	releaseFn func(ctx context.Context, path string) (int, error)
	removeFn  func(ctx context.Context, path string) error
	auditFn   func(ctx context.Context) ([]*model.ObjectAudit, error)
}

func (m *mockObjectRepo) Claim(ctx context.Context, obj *model.StoredObject) error {
	if m.claimFn != nil {
		return m.claimFn(ctx, obj)
	}
	return nil
}

func (m *mockObjectRepo) Acquire(ctx context.Context, hash string) (*model.StoredObject, error) {
	if m.acquireFn != nil {
		return m.acquireFn(ctx, hash)
	}
	return nil, repository.ErrNotFound
}

func (m *mockObjectRepo) Release(ctx context.Context, path string) (int, error) {
	if m.releaseFn != nil {
		return m.releaseFn(ctx, path)
	}
	return 0, nil
}

func (m *mockObjectRepo) Remove(ctx context.Context, path string) error {
	if m.removeFn != nil {
		return m.removeFn(ctx, path)
	}
	return nil
}

func (m *mockObjectRepo) Audit(ctx context.Context) ([]*model.ObjectAudit, error) {
	if m.auditFn != nil {
		return m.auditFn(ctx)
	}
	return nil, nil
}

// mockEventRepo — мок EventRepository, запоминает события.
type mockEventRepo struct {
	mu       sync.Mutex
	events   []*model.UploadEvent
	err      error
	appendFn func(ctx context.Context, e *model.UploadEvent) error
}

func (m *mockEventRepo) Append(ctx context.Context, e *model.UploadEvent) error {
	if m.appendFn != nil {
		if err := m.appendFn(ctx, e); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

// mockTx — Transactor без БД: передаёт в fn те же моки.
type mockTx struct {
	files   *mockFileRepo
	objects *mockObjectRepo
	calls   int
}

func (m *mockTx) InTx(_ context.Context, fn func(r repository.Repos) error) error {
	m.calls++
	return fn(repository.Repos{Files: m.files, Objects: m.objects})
}

// --- Mock store ---

// mockStore — мок storage.Store с функциями-перехватчиками.
type mockStore struct {
	putFn    func(ctx context.Context, bucket, name string, data []byte) (string, error)
	getFn    func(ctx context.Context, path string) ([]byte, error)
	deleteFn func(ctx context.Context, path string) error
	pingFn   func(ctx context.Context) error
}

func (m *mockStore) Put(ctx context.Context, bucket, name string, data []byte) (string, error) {
	if m.putFn != nil {
		return m.putFn(ctx, bucket, name, data)
	}
	return bucket + "/" + name, nil
}

func (m *mockStore) Get(ctx context.Context, path string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, path)
	}
	return nil, nil
}

func (m *mockStore) Delete(ctx context.Context, path string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, path)
	}
	return nil
}

func (m *mockStore) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}
