package files

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/securehub/internal/models"
	"github.com/iudanet/securehub/internal/server/blob"
	"github.com/iudanet/securehub/internal/server/notify"
	"github.com/iudanet/securehub/internal/server/storage/sqlite"
)

type published struct {
	audience notify.Audience
	event    notify.Event
}

type recordingNotifier struct {
	events []published
	mu     sync.Mutex
}

func (r *recordingNotifier) Publish(_ context.Context, a notify.Audience, e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{audience: a, event: e})
}

// failingBlobs оборачивает Store и ломает отдельные операции
type failingBlobs struct {
	blob.Store
	putErr    error
	deleteErr error
	deleted   []string
}

func (f *failingBlobs) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.Store.Put(ctx, name, r, size)
}

func (f *failingBlobs) Delete(ctx context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Store.Delete(ctx, name)
}

type testEnv struct {
	svc      *Service
	store    *sqlite.Storage
	blobs    *failingBlobs
	notifier *recordingNotifier
}

// downloads считает строки журнала по файлу
func (e *testEnv) downloads(t *testing.T, fileID string) int {
	t.Helper()
	entries, err := e.store.ListDownloadLogs(context.Background())
	require.NoError(t, err)
	count := 0
	for _, entry := range entries {
		if entry.FileID == fileID {
			count++
		}
	}
	return count
}

func setupService(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	local, err := blob.NewLocal(t.TempDir())
	require.NoError(t, err)
	blobs := &failingBlobs{Store: local}

	notifier := &recordingNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(logger, store, store, store, blobs, notifier, nil)

	return &testEnv{svc: svc, store: store, blobs: blobs, notifier: notifier}
}

func (e *testEnv) user(t *testing.T, name string, dept models.Department, role models.Role) models.Identity {
	t.Helper()
	now := time.Now()
	u := &models.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        strings.ToLower(name) + "@example.com",
		PasswordHash: "hash",
		Department:   dept,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, e.store.CreateUser(context.Background(), u))
	return models.Identity{UserID: u.ID, Email: u.Email, Name: u.Name, Department: u.Department, Role: u.Role}
}

func (e *testEnv) upload(t *testing.T, actor models.Identity, name, content string, vis models.Visibility) *models.File {
	t.Helper()
	file, err := e.svc.Upload(context.Background(), actor, UploadRequest{
		Content:     strings.NewReader(content),
		Name:        name,
		ContentType: "text/plain",
		Visibility:  vis,
		Size:        int64(len(content)),
	})
	require.NoError(t, err)
	return file
}

func readAll(t *testing.T, d *Download) string {
	t.Helper()
	defer d.Content.Close()
	data, err := io.ReadAll(d.Content)
	require.NoError(t, err)
	return string(data)
}

func TestService_Upload(t *testing.T) {
	env := setupService(t)
	alice := env.user(t, "Alice", models.DepartmentHR, models.RoleEmployee)

	file := env.upload(t, alice, "../../etc/Report.PDF", "hello", models.Visibility{
		Scope:            models.ScopeDepartment,
		TargetDepartment: models.DepartmentSales,
		TargetUserID:     "ignored",
	})

	assert.Equal(t, "Report.PDF", file.Name)
	assert.Regexp(t, `^\d+-[0-9a-f-]{36}\.pdf$`, file.StoredName)
	assert.Equal(t, int64(5), file.Size)
	assert.Empty(t, file.TargetUserID, "unused target is cleared")
	require.NotNil(t, file.Uploader)
	assert.Equal(t, "Alice", file.Uploader.Name)

	stored, err := env.store.GetFile(context.Background(), file.ID)
	require.NoError(t, err)
	assert.Equal(t, file.StoredName, stored.StoredName)

	require.Len(t, env.notifier.events, 1)
	evt := env.notifier.events[0]
	assert.Equal(t, "department:sales", evt.audience.Room())
	assert.Equal(t, notify.EventFileShared, evt.event.Type)
	payload, ok := evt.event.Payload.(SharedEvent)
	require.True(t, ok)
	assert.Equal(t, file.ID, payload.ID)
}

func TestService_Upload_InvalidScope(t *testing.T) {
	env := setupService(t)
	alice := env.user(t, "Alice", models.DepartmentHR, models.RoleEmployee)

	tests := []struct {
		wantErr error
		name    string
		vis     models.Visibility
	}{
		{name: "unknown scope", vis: models.Visibility{Scope: "nobody"}, wantErr: ErrInvalidScope},
		{name: "empty scope", vis: models.Visibility{}, wantErr: ErrInvalidScope},
		{name: "department without target", vis: models.Visibility{Scope: models.ScopeDepartment}, wantErr: ErrInvalidScope},
		{name: "unknown department", vis: models.Visibility{Scope: models.ScopeDepartment, TargetDepartment: "finance"}, wantErr: ErrInvalidScope},
		{name: "user without target", vis: models.Visibility{Scope: models.ScopeUser}, wantErr: ErrInvalidScope},
		{name: "unknown user", vis: models.Visibility{Scope: models.ScopeUser, TargetUserID: "ghost"}, wantErr: ErrInvalidScope},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Upload(context.Background(), alice, UploadRequest{
				Content:    strings.NewReader("x"),
				Name:       "a.txt",
				Visibility: tt.vis,
				Size:       1,
			})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := env.svc.Upload(context.Background(), alice, UploadRequest{
		Name:       "a.txt",
		Visibility: models.Visibility{Scope: models.ScopeEveryone},
	})
	assert.ErrorIs(t, err, ErrEmptyFile)

	files, err := env.svc.ListVisible(context.Background(), alice)
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.Empty(t, env.notifier.events)
}

func TestService_Upload_BlobFailure(t *testing.T) {
	env := setupService(t)
	alice := env.user(t, "Alice", models.DepartmentHR, models.RoleEmployee)
	env.blobs.putErr = errors.New("disk full")

	_, err := env.svc.Upload(context.Background(), alice, UploadRequest{
		Content:    strings.NewReader("x"),
		Name:       "a.txt",
		Visibility: models.Visibility{Scope: models.ScopeEveryone},
		Size:       1,
	})
	require.Error(t, err)

	files, err := env.svc.ListVisible(context.Background(), alice)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestService_Upload_MetadataFailureRemovesBlob(t *testing.T) {
	env := setupService(t)
	// Пользователь не сохранён в базе, FK uploaded_by не пройдёт
	ghost := models.Identity{UserID: "ghost", Department: models.DepartmentHR}

	_, err := env.svc.Upload(context.Background(), ghost, UploadRequest{
		Content:    strings.NewReader("x"),
		Name:       "a.txt",
		Visibility: models.Visibility{Scope: models.ScopeEveryone},
		Size:       1,
	})
	require.Error(t, err)
	require.Len(t, env.blobs.deleted, 1)

	_, err = env.blobs.Open(context.Background(), env.blobs.deleted[0])
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestService_ListVisible_NoLeaks(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	alice := env.user(t, "Alice", models.DepartmentHR, models.RoleEmployee)
	bob := env.user(t, "Bob", models.DepartmentSales, models.RoleEmployee)
	carol := env.user(t, "Carol", models.DepartmentSales, models.RoleEmployee)
	admin := env.user(t, "Root", models.DepartmentAdmin, models.RoleAdmin)

	everyone := env.upload(t, alice, "all.txt", "a", models.Visibility{Scope: models.ScopeEveryone})
	hr := env.upload(t, alice, "hr.txt", "b", models.Visibility{Scope: models.ScopeDepartment, TargetDepartment: models.DepartmentHR})
	sales := env.upload(t, alice, "sales.txt", "c", models.Visibility{Scope: models.ScopeDepartment, TargetDepartment: models.DepartmentSales})
	toBob := env.upload(t, alice, "bob.txt", "d", models.Visibility{Scope: models.ScopeUser, TargetUserID: bob.UserID})

	all := []*models.File{everyone, hr, sales, toBob}

	for _, actor := range []models.Identity{alice, bob, carol, admin} {
		t.Run(actor.Name, func(t *testing.T) {
			listed, err := env.svc.ListVisible(ctx, actor)
			require.NoError(t, err)

			got := make(map[string]bool)
			for _, f := range listed {
				got[f.ID] = true
				assert.True(t, f.VisibleTo(actor), "%s leaked to %s", f.Name, actor.Name)
			}
			// И наоборот: всё видимое попадает в список
			for _, f := range all {
				assert.Equal(t, f.VisibleTo(actor), got[f.ID], "file %s for %s", f.Name, actor.Name)
			}
		})
	}
}

func TestService_Download_AuditRows(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	alice := env.user(t, "Alice", models.DepartmentHR, models.RoleEmployee)
	bob := env.user(t, "Bob", models.DepartmentSales, models.RoleEmployee)
	file := env.upload(t, alice, "hr.txt", "secret", models.Visibility{Scope: models.ScopeDepartment, TargetDepartment: models.DepartmentHR})

	_, err := env.svc.Download(ctx, bob, file.ID, DownloadMeta{})
	assert.ErrorIs(t, err, ErrForbidden)

	assert.Equal(t, 0, env.downloads(t, file.ID))

	for i := 1; i <= 2; i++ {
		d, err := env.svc.Download(ctx, alice, file.ID, DownloadMeta{DeviceID: "dev1", IPAddress: "10.0.0.1", UserAgent: "curl"})
		require.NoError(t, err)
		assert.Equal(t, "secret", readAll(t, d))

		assert.Equal(t, i, env.downloads(t, file.ID))
	}

	mine, err := env.svc.ListMyDownloadLogs(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "dev1", mine[0].DeviceID)
	assert.Equal(t, "hr.txt", mine[0].FileName)

	none, err := env.svc.ListMyDownloadLogs(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestService_Download_Errors(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	alice := env.user(t, "Alice", models.DepartmentHR, models.RoleEmployee)
	file := env.upload(t, alice, "a.txt", "x", models.Visibility{Scope: models.ScopeEveryone})

	_, err := env.svc.Download(ctx, alice, "missing-id", DownloadMeta{})
	assert.ErrorIs(t, err, ErrNotFound)

	// Байты удалены в обход сервиса
	require.NoError(t, env.blobs.Store.Delete(ctx, file.StoredName))
	_, err = env.svc.Download(ctx, alice, file.ID, DownloadMeta{})
	assert.ErrorIs(t, err, ErrMissingOnDisk)

	assert.Equal(t, 0, env.downloads(t, file.ID))
}

func TestService_Delete(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	alice := env.user(t, "Alice", models.DepartmentHR, models.RoleEmployee)
	admin := env.user(t, "Root", models.DepartmentAdmin, models.RoleAdmin)
	file := env.upload(t, alice, "a.txt", "x", models.Visibility{Scope: models.ScopeEveryone})

	// Даже загрузивший сотрудник не может удалить
	err := env.svc.Delete(ctx, alice, file.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.store.GetFile(ctx, file.ID)
	require.NoError(t, err)
	rc, err := env.blobs.Open(ctx, file.StoredName)
	require.NoError(t, err)
	rc.Close()

	require.NoError(t, env.svc.Delete(ctx, admin, file.ID))

	_, err = env.svc.Download(ctx, alice, file.ID, DownloadMeta{})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.blobs.Open(ctx, file.StoredName)
	assert.ErrorIs(t, err, blob.ErrNotFound)

	err = env.svc.Delete(ctx, admin, file.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_Delete_BytesAlreadyGone(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	alice := env.user(t, "Alice", models.DepartmentHR, models.RoleEmployee)
	admin := env.user(t, "Root", models.DepartmentAdmin, models.RoleAdmin)
	file := env.upload(t, alice, "a.txt", "x", models.Visibility{Scope: models.ScopeEveryone})

	require.NoError(t, env.blobs.Store.Delete(ctx, file.StoredName))
	env.blobs.deleteErr = errors.New("bucket unavailable")

	require.NoError(t, env.svc.Delete(ctx, admin, file.ID))
	_, err := env.store.GetFile(ctx, file.ID)
	assert.Error(t, err)
}

func TestService_ListDownloadLogs_AdminOnly(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	alice := env.user(t, "Alice", models.DepartmentHR, models.RoleEmployee)
	admin := env.user(t, "Root", models.DepartmentAdmin, models.RoleAdmin)
	file := env.upload(t, alice, "a.txt", "x", models.Visibility{Scope: models.ScopeEveryone})

	d, err := env.svc.Download(ctx, alice, file.ID, DownloadMeta{})
	require.NoError(t, err)
	readAll(t, d)

	_, err = env.svc.ListDownloadLogs(ctx, alice)
	assert.ErrorIs(t, err, ErrForbidden)

	logs, err := env.svc.ListDownloadLogs(ctx, admin)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, alice.Email, logs[0].UserEmail)

	// Журнал переживает удаление файла
	require.NoError(t, env.svc.Delete(ctx, admin, file.ID))
	logs, err = env.svc.ListDownloadLogs(ctx, admin)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, file.ID, logs[0].FileID)
}

// Сценарий: alice (hr) делится с отделом hr, bob (hr) скачивает,
// dave (sales) не видит файл, администратор видит журнал и удаляет файл.
func TestService_EndToEndHRScenario(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	alice := env.user(t, "Alice", models.DepartmentHR, models.RoleEmployee)
	bob := env.user(t, "Bob", models.DepartmentHR, models.RoleEmployee)
	dave := env.user(t, "Dave", models.DepartmentSales, models.RoleEmployee)
	admin := env.user(t, "Root", models.DepartmentAdmin, models.RoleAdmin)

	file := env.upload(t, alice, "payroll.xlsx", "numbers", models.Visibility{
		Scope:            models.ScopeDepartment,
		TargetDepartment: models.DepartmentHR,
	})

	bobFiles, err := env.svc.ListVisible(ctx, bob)
	require.NoError(t, err)
	require.Len(t, bobFiles, 1)
	assert.Equal(t, "Alice", bobFiles[0].Uploader.Name)

	daveFiles, err := env.svc.ListVisible(ctx, dave)
	require.NoError(t, err)
	assert.Empty(t, daveFiles)

	d, err := env.svc.Download(ctx, bob, file.ID, DownloadMeta{DeviceID: "bob-laptop"})
	require.NoError(t, err)
	assert.Equal(t, "numbers", readAll(t, d))

	_, err = env.svc.Download(ctx, dave, file.ID, DownloadMeta{})
	assert.ErrorIs(t, err, ErrForbidden)

	logs, err := env.svc.ListDownloadLogs(ctx, admin)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, bob.UserID, logs[0].UserID)
	assert.Equal(t, "bob-laptop", logs[0].DeviceID)

	require.NoError(t, env.svc.Delete(ctx, admin, file.ID))
	bobFiles, err = env.svc.ListVisible(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, bobFiles)
}

func TestCleanName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "report.pdf", want: "report.pdf"},
		{in: "../../etc/passwd", want: "passwd"},
		{in: `C:\Users\me\doc.txt`, want: "doc.txt"},
		{in: "  spaced.txt ", want: "spaced.txt"},
		{in: "", want: ""},
		{in: "/", want: ""},
		{in: strings.Repeat("a", 255), want: strings.Repeat("a", 255)},
		{in: strings.Repeat("a", 300) + ".txt", want: strings.Repeat("a", 251) + ".txt"},
		// 2 байта на руну: основа режется до 125 рун, расширение остаётся
		{in: strings.Repeat("я", 130) + ".pdf", want: strings.Repeat("я", 125) + ".pdf"},
		{in: "отчёт." + strings.Repeat("x", 300), want: "отчёт." + strings.Repeat("x", 244)},
	}

	for _, tt := range tests {
		name := tt.in
		if len(name) > 40 {
			name = name[:20] + "..."
		}
		t.Run(name, func(t *testing.T) {
			got := cleanName(tt.in)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
			assert.LessOrEqual(t, len(got), maxNameLen)
		})
	}
}
