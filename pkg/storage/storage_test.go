package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []ModuleRecord {
	return []ModuleRecord{
		{
			Name:    "node-red",
			Version: "4.0.0",
			Units: []UnitRecord{
				{Name: "inject", Enabled: true, Types: []string{"inject"}},
				{Name: "debug", Enabled: false, Types: []string{"debug"}},
			},
		},
		{
			Name:    "@acme/widgets",
			Version: "1.2.0",
			Path:    "/home/user/.node-red/node_modules/@acme/widgets",
			Local:   true,
			User:    true,
			Units:   []UnitRecord{{Name: "widget", Enabled: true, Types: []string{}}},
		},
	}
}

func testRoundTrip(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	empty, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, s.Save(ctx, sampleRecords()))
	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleRecords(), loaded)

	require.NoError(t, s.Save(ctx, sampleRecords()[1:]))
	loaded, err = s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "@acme/widgets", loaded[0].Name)
}

func TestModuleRecord_Unit(t *testing.T) {
	rec := sampleRecords()[0]

	u, ok := rec.Unit("debug")
	require.True(t, ok)
	assert.False(t, u.Enabled)

	_, ok = rec.Unit("missing")
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	testRoundTrip(t, s)
	assert.Equal(t, 2, s.Saves())
}

func TestMemoryStore_IsolatesCallers(t *testing.T) {
	s := NewMemoryStore()
	records := sampleRecords()
	require.NoError(t, s.Save(context.Background(), records))

	records[0].Units[0].Types[0] = "changed"
	loaded, _ := s.Load(context.Background())
	assert.Equal(t, "inject", loaded[0].Units[0].Types[0])
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), s.Path())

	testRoundTrip(t, s)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestFileStore_Corrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0644))

	s, err := NewFileStore(dir)
	require.NoError(t, err)
	_, err = s.Load(context.Background())
	assert.Error(t, err)
}

func TestSQLStore_SQLite(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	s, err := NewSQLStore(context.Background(), db, DialectSQLite)
	require.NoError(t, err)

	testRoundTrip(t, s)
}

func TestOpenSQLStore_SQLiteFile(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "registry.db")
	s, err := OpenSQLStore(context.Background(), DialectSQLite, dsn, 0)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(context.Background(), sampleRecords()))
	loaded, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}

func TestOpenSQLStore_NoDSN(t *testing.T) {
	_, err := OpenSQLStore(context.Background(), DialectPostgres, "", 0)
	assert.Error(t, err)
}

func TestSQLStore_PostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS node_modules_state").WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := NewSQLStore(context.Background(), db, DialectPostgres)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM node_modules_state").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO node_modules_state .+ VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7\)`).
		WithArgs("node-red", 0, "4.0.0", "", false, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Save(context.Background(), sampleRecords()[:1]))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_SaveRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := NewSQLStore(context.Background(), db, DialectPostgres)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM node_modules_state").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO node_modules_state").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = s.Save(context.Background(), sampleRecords())
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_LoadPostgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := NewSQLStore(context.Background(), db, DialectPostgres)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"name", "version", "path", "local", "user_installed", "units"}).
		AddRow("foo", "1.0.0", "/p/foo", true, true, `[{"name":"foo","enabled":false,"types":["foo"]}]`)
	mock.ExpectQuery("SELECT (.+) FROM node_modules_state ORDER BY position").WillReturnRows(rows)

	loaded, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "foo", loaded[0].Name)
	assert.False(t, loaded[0].Units[0].Enabled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_TableCreationFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("denied"))
	_, err = NewSQLStore(context.Background(), db, DialectPostgres)
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: DialectPostgres}
	lite := &SQLStore{dialect: DialectSQLite}

	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))
	assert.Equal(t, "a = ? AND b = ?", lite.rebind("a = ? AND b = ?"))
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := OpenRedisStore(context.Background(), Config{RedisURL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	defer s.Close()

	testRoundTrip(t, s)
	assert.True(t, mr.Exists(DefaultRedisKey))
}

func TestRedisStore_CustomKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	s := NewRedisStore(client, "custom:key")
	require.NoError(t, s.Save(context.Background(), sampleRecords()))
	assert.True(t, mr.Exists("custom:key"))
	require.NoError(t, s.Close())
}

func TestRedisStore_Corrupt(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set(DefaultRedisKey, "not json"))

	s := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	defer s.Close()
	_, err := s.Load(context.Background())
	assert.Error(t, err)
}

func TestOpenRedisStore_Errors(t *testing.T) {
	_, err := OpenRedisStore(context.Background(), Config{RedisURL: "invalid://url"})
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = OpenRedisStore(context.Background(), Config{RedisURL: "redis://" + addr})
	assert.Error(t, err)
}

type fakeS3 struct {
	objects map[string][]byte
	putErr  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3Store(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	s := NewS3Store(fake, "bucket", "")

	testRoundTrip(t, s)
	assert.Contains(t, fake.objects, "bucket/"+DefaultObjectKey)
}

func TestS3Store_PutError(t *testing.T) {
	s := NewS3Store(&fakeS3{objects: map[string][]byte{}, putErr: errors.New("denied")}, "bucket", "k")

	err := s.Save(context.Background(), sampleRecords())
	assert.ErrorContains(t, err, "denied")
}

func TestOpenS3Store_RequiresBucket(t *testing.T) {
	_, err := OpenS3Store(context.Background(), Config{})
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, Config{Type: TypeMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = New(ctx, Config{Type: TypeFilesystem, FilesystemRoot: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = New(ctx, Config{Type: TypeSQLite, SQLiteDSN: "file:" + filepath.Join(t.TempDir(), "r.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, s)
	require.NoError(t, s.Close())

	_, err = New(ctx, Config{Type: "etcd"})
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, TypeFilesystem, cfg.Type)
	assert.Equal(t, DefaultRedisKey, cfg.RedisKey)
	assert.Equal(t, DefaultObjectKey, cfg.S3Key)
}
