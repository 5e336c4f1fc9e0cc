package engine

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/minisql/internal/command"
	"github.com/tuannm99/minisql/internal/heap"
	"github.com/tuannm99/minisql/internal/index"
	"github.com/tuannm99/minisql/internal/record"
)

func usersColumns() []record.Column {
	return []record.Column{
		{Name: "name", Type: record.TypeText},
		{Name: "age", Type: record.TypeInteger},
	}
}

func openTestDB(t *testing.T, fs afero.Fs) *Database {
	t.Helper()
	db, err := Open(Options{Fs: fs, DataDir: "/data", TreeDegree: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// newUsersDB creates users(name TEXT, age INTEGER) holding User1..User5 aged 21..25.
func newUsersDB(t *testing.T, fs afero.Fs) *Database {
	t.Helper()
	db := openTestDB(t, fs)
	require.NoError(t, db.CreateTable("users", usersColumns()))
	for i := 1; i <= 5; i++ {
		require.NoError(t, db.InsertInto("users", record.Row{
			"name": record.Text(fmt.Sprintf("User%d", i)),
			"age":  record.Integer(int32(20 + i)),
		}))
	}
	return db
}

func rowNames(rows []record.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r["name"].String()
	}
	return out
}

// requireIndexConsistent checks that every index maps each key to exactly the
// rows whose column has that canonical value.
func requireIndexConsistent(t *testing.T, db *Database) {
	t.Helper()
	for name, ix := range db.indexes {
		tbl := db.tables[ix.Table]
		want := map[string][]heap.RowID{}
		_ = tbl.Scan(func(id heap.RowID, row record.Row) error {
			if v, ok := row[ix.Column]; ok {
				want[v.String()] = append(want[v.String()], id)
			}
			return nil
		})

		got := map[string][]heap.RowID{}
		for _, e := range ix.Entries() {
			got[e.Key.String()] = e.IDs
		}
		require.Equal(t, want, got, "index %s", name)
	}
}

func TestDatabase_PaginationScenario(t *testing.T) {
	db := newUsersDB(t, afero.NewMemMapFs())

	rows, err := db.GetPage("users", 2, 2, "", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"User3", "User4"}, rowNames(rows))

	rows, err = db.GetPage("users", 3, 2, "", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"User5"}, rowNames(rows))

	_, err = db.GetPage("users", 4, 2, "", nil)
	require.ErrorIs(t, err, ErrPageOutOfRange)

	total, err := db.TotalPages("users", 2)
	require.NoError(t, err)
	require.Equal(t, 3, total)
}

func TestDatabase_PageZeroServesFirstPage(t *testing.T) {
	db := newUsersDB(t, afero.NewMemMapFs())

	rows, err := db.GetPage("users", 0, 2, "", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"User1", "User2"}, rowNames(rows))
}

func TestDatabase_PageSizeZero(t *testing.T) {
	db := newUsersDB(t, afero.NewMemMapFs())

	_, err := db.GetPage("users", 1, 0, "", nil)
	require.ErrorIs(t, err, ErrInvalidPageSize)

	_, err = db.TotalPages("users", 0)
	require.ErrorIs(t, err, ErrInvalidPageSize)
}

func TestDatabase_PaginationCoversAllRows(t *testing.T) {
	db := newUsersDB(t, afero.NewMemMapFs())

	for size := 1; size <= 6; size++ {
		total, err := db.TotalPages("users", size)
		require.NoError(t, err)

		var all []string
		for p := 1; p <= total; p++ {
			rows, err := db.GetPage("users", p, size, "", nil)
			require.NoError(t, err)
			all = append(all, rowNames(rows)...)
		}
		require.Equal(t, []string{"User1", "User2", "User3", "User4", "User5"}, all, "size %d", size)

		_, err = db.GetPage("users", total+1, size, "", nil)
		require.ErrorIs(t, err, ErrPageOutOfRange)
	}
}

func TestDatabase_CreateTable(t *testing.T) {
	db := openTestDB(t, afero.NewMemMapFs())

	require.NoError(t, db.CreateTable("users", usersColumns()))
	require.ErrorIs(t, db.CreateTable("users", usersColumns()), ErrTableExists)
	require.Equal(t, []string{"users"}, db.Tables())

	schema, err := db.Schema("users")
	require.NoError(t, err)
	require.Equal(t, []string{"name", "age"}, schema.ColumnNames())

	err = db.CreateTable("dup", []record.Column{
		{Name: "a", Type: record.TypeText},
		{Name: "a", Type: record.TypeText},
	})
	require.ErrorIs(t, err, ErrParse)
}

func TestDatabase_InsertValidation(t *testing.T) {
	db := newUsersDB(t, afero.NewMemMapFs())

	err := db.InsertInto("nope", record.Row{"name": record.Text("x")})
	require.ErrorIs(t, err, ErrTableNotFound)

	err = db.InsertInto("users", record.Row{"email": record.Text("x")})
	require.ErrorIs(t, err, ErrColumnNotFound)

	err = db.InsertInto("users", record.Row{"name": record.Text("x"), "age": record.Text("old")})
	require.ErrorIs(t, err, ErrTypeMismatch)

	err = db.InsertInto("users", record.Row{"name": record.Integer(1)})
	require.ErrorIs(t, err, ErrTypeMismatch)

	// nothing was added by the failed inserts
	total, err := db.TotalPages("users", 1)
	require.NoError(t, err)
	require.Equal(t, 5, total)
}

func TestDatabase_InsertPartialRow(t *testing.T) {
	db := newUsersDB(t, afero.NewMemMapFs())

	require.NoError(t, db.InsertInto("users", record.Row{"name": record.Text("NoAge")}))

	rows, err := db.GetPage("users", 6, 1, "", nil)
	require.NoError(t, err)
	_, ok := rows[0]["age"]
	require.False(t, ok)
}

func TestDatabase_IndexScenario(t *testing.T) {
	db := newUsersDB(t, afero.NewMemMapFs())
	require.NoError(t, db.CreateIndex("users", "age"))

	ix, ok := db.Index("users_age")
	require.True(t, ok)
	require.Len(t, ix.Lookup(record.Integer(23)), 1)

	n, err := db.DeleteFrom("users", "age='23'")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.Empty(t, ix.Lookup(record.Integer(23)))
	for _, e := range ix.Entries() {
		require.NotEqual(t, "23", e.Key.String())
	}
	requireIndexConsistent(t, db)
}

func TestDatabase_CreateIndexValidation(t *testing.T) {
	db := newUsersDB(t, afero.NewMemMapFs())

	require.ErrorIs(t, db.CreateIndex("nope", "age"), ErrTableNotFound)
	require.ErrorIs(t, db.CreateIndex("users", "email"), ErrColumnNotFound)
	require.Empty(t, db.Indexes())
}

func TestDatabase_CreateIndexTwiceRebuilds(t *testing.T) {
	db := newUsersDB(t, afero.NewMemMapFs())
	require.NoError(t, db.CreateIndex("users", "age"))
	require.NoError(t, db.InsertInto("users", record.Row{"name": record.Text("User6"), "age": record.Integer(21)}))
	require.NoError(t, db.CreateIndex("users", "age"))

	require.Equal(t, []string{"users_age"}, db.Indexes())
	ix, _ := db.Index("users_age")
	require.Len(t, ix.Lookup(record.Integer(21)), 2)
	requireIndexConsistent(t, db)
}

func TestDatabase_UpdateMaintainsIndex(t *testing.T) {
	db := newUsersDB(t, afero.NewMemMapFs())
	require.NoError(t, db.CreateIndex("users", "age"))
	require.NoError(t, db.CreateIndex("users", "name"))

	n, err := db.Update("users", record.Row{"age": record.Integer(30)}, "name=User2")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	ix, _ := db.Index("users_age")
	require.Empty(t, ix.Lookup(record.Integer(22)))
	require.Len(t, ix.Lookup(record.Integer(30)), 1)
	requireIndexConsistent(t, db)

	// no condition updates every row
	n, err = db.Update("users", record.Row{"age": record.Integer(40)}, "")
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, 1, ix.Len())
	require.Len(t, ix.Lookup(record.Integer(40)), 5)
	requireIndexConsistent(t, db)
}

func TestDatabase_UpdateSetsMissingColumn(t *testing.T) {
	db := openTestDB(t, afero.NewMemMapFs())
	require.NoError(t, db.CreateTable("users", usersColumns()))
	require.NoError(t, db.InsertInto("users", record.Row{"name": record.Text("a")}))
	require.NoError(t, db.CreateIndex("users", "age"))

	n, err := db.Update("users", record.Row{"age": record.Integer(7)}, `name="a"`)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	ix, _ := db.Index("users_age")
	require.Len(t, ix.Lookup(record.Integer(7)), 1)
	requireIndexConsistent(t, db)
}

func TestDatabase_UpdateValidation(t *testing.T) {
	db := newUsersDB(t, afero.NewMemMapFs())

	_, err := db.Update("nope", record.Row{"age": record.Integer(1)}, "")
	require.ErrorIs(t, err, ErrTableNotFound)

	_, err = db.Update("users", record.Row{"email": record.Text("x")}, "")
	require.ErrorIs(t, err, ErrColumnNotFound)

	_, err = db.Update("users", record.Row{"age": record.Text("x")}, "")
	require.ErrorIs(t, err, ErrTypeMismatch)

	_, err = db.Update("users", record.Row{"age": record.Integer(1)}, "age")
	require.ErrorIs(t, err, ErrParse)

	_, err = db.Update("users", record.Row{"age": record.Integer(1)}, "a=b=c")
	require.ErrorIs(t, err, ErrParse)

	_, err = db.Update("users", record.Row{"age": record.Integer(1)}, "email=x")
	require.ErrorIs(t, err, ErrColumnNotFound)

	// rows are untouched
	rows, err := db.GetPage("users", 1, 5, "", nil)
	require.NoError(t, err)
	for i, r := range rows {
		require.Equal(t, record.Integer(int32(21+i)), r["age"])
	}
}

func TestDatabase_DeleteCounts(t *testing.T) {
	db := newUsersDB(t, afero.NewMemMapFs())
	_, err := db.Update("users", record.Row{"age": record.Integer(99)}, "name=User1")
	require.NoError(t, err)
	_, err = db.Update("users", record.Row{"age": record.Integer(99)}, "name=User4")
	require.NoError(t, err)

	n, err := db.DeleteFrom("users", "age = 99")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = db.DeleteFrom("users", "age=99")
	require.NoError(t, err)
	require.Equal(t, 0, n)

	_, err = db.DeleteFrom("users", "no condition")
	require.ErrorIs(t, err, ErrParse)

	n, err = db.DeleteFrom("users", "")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	_, err = db.GetPage("users", 1, 10, "", nil)
	require.ErrorIs(t, err, ErrPageOutOfRange)
}

func TestDatabase_DeleteKeepsOtherRowsIndexed(t *testing.T) {
	db := newUsersDB(t, afero.NewMemMapFs())
	require.NoError(t, db.CreateIndex("users", "age"))

	// deleting an early row must not leave later entries pointing at the wrong row
	_, err := db.DeleteFrom("users", "name=User1")
	require.NoError(t, err)

	ix, _ := db.Index("users_age")
	ids := ix.Lookup(record.Integer(25))
	require.Len(t, ids, 1)
	row, ok := db.tables["users"].Get(ids[0])
	require.True(t, ok)
	require.Equal(t, "User5", row["name"].String())
	requireIndexConsistent(t, db)
}

func TestDatabase_RandomOpsKeepIndexesConsistent(t *testing.T) {
	db := openTestDB(t, afero.NewMemMapFs())
	require.NoError(t, db.CreateTable("t", []record.Column{
		{Name: "k", Type: record.TypeInteger},
		{Name: "tag", Type: record.TypeText},
	}))
	require.NoError(t, db.CreateIndex("t", "k"))
	require.NoError(t, db.CreateIndex("t", "tag"))

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 300; i++ {
		k := record.Integer(int32(rng.Intn(20)))
		tag := record.Text(fmt.Sprintf("t%d", rng.Intn(5)))
		switch rng.Intn(4) {
		case 0, 1:
			require.NoError(t, db.InsertInto("t", record.Row{"k": k, "tag": tag}))
		case 2:
			_, err := db.Update("t", record.Row{"k": k}, "tag="+tag.String())
			require.NoError(t, err)
		case 3:
			_, err := db.DeleteFrom("t", "k="+k.String())
			require.NoError(t, err)
		}
	}
	requireIndexConsistent(t, db)
}

func TestDatabase_PersistAndReopen(t *testing.T) {
	fs := afero.NewMemMapFs()
	db := newUsersDB(t, fs)
	require.NoError(t, db.CreateIndex("users", "age"))
	_, err := db.DeleteFrom("users", "name=User2")
	require.NoError(t, err)
	before, err := db.GetPage("users", 1, 10, "", nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db2 := openTestDB(t, fs)
	require.True(t, db2.loaded)
	require.Equal(t, []string{"users"}, db2.Tables())
	require.Equal(t, []string{"users_age"}, db2.Indexes())

	after, err := db2.GetPage("users", 1, 10, "", nil)
	require.NoError(t, err)
	require.Equal(t, before, after)

	schema, err := db2.Schema("users")
	require.NoError(t, err)
	require.Equal(t, usersColumns(), schema.Cols)
	requireIndexConsistent(t, db2)

	// identifiers keep growing after reopen
	require.NoError(t, db2.InsertInto("users", record.Row{"name": record.Text("User6"), "age": record.Integer(26)}))
	require.Equal(t, heap.RowID(6), db2.tables["users"].NextID())
}

func TestDatabase_ReopenWithOtherOrderingRebuildsIndexes(t *testing.T) {
	fs := afero.NewMemMapFs()
	db := newUsersDB(t, fs)
	require.NoError(t, db.CreateIndex("users", "age"))
	require.NoError(t, db.Close())

	db2, err := Open(Options{Fs: fs, DataDir: "/data", Ordering: record.Typed})
	require.NoError(t, err)
	defer db2.Close()

	ix, ok := db2.Index("users_age")
	require.True(t, ok)
	require.Equal(t, 5, ix.Len())
	requireIndexConsistent(t, db2)
}

func TestDatabase_OnDisk(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(Options{DataDir: dir, SyncJournal: true})
	require.NoError(t, err)
	require.NoError(t, db.CreateTable("users", usersColumns()))
	require.NoError(t, db.Close())

	_, err = os.Stat(filepath.Join(dir, DefaultSnapshotFile))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, DefaultJournalFile))
	require.NoError(t, err)

	db, err = Open(Options{DataDir: dir})
	require.NoError(t, err)
	defer db.Close()
	require.Equal(t, []string{"users"}, db.Tables())
}

func TestDatabase_LoadOnFirstRead(t *testing.T) {
	fs := afero.NewMemMapFs()
	empty := openTestDB(t, fs)
	require.False(t, empty.loaded)

	// another handle writes a snapshot after the first one opened
	writer, err := Open(Options{Fs: fs, DataDir: "/data", JournalFile: "other.log"})
	require.NoError(t, err)
	require.NoError(t, writer.CreateTable("late", usersColumns()))
	require.NoError(t, writer.Close())

	require.Equal(t, []string{"late"}, empty.Tables())
	require.True(t, empty.loaded)
}

func TestDatabase_CorruptSnapshot(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/data", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/data/"+DefaultSnapshotFile, []byte("{oops"), 0o644))

	_, err := Open(Options{Fs: fs, DataDir: "/data"})
	require.ErrorIs(t, err, ErrIO)
}

func TestDatabase_JournalsBeforeApply(t *testing.T) {
	db := newUsersDB(t, afero.NewMemMapFs())

	_, err := db.ExecuteText("insert into users (name) values ('x');",
		&command.InsertInto{Table: "users", Values: record.Row{"name": record.Text("x")}})
	require.NoError(t, err)

	// rejected commands are journaled too; validation runs after the append
	require.ErrorIs(t, db.CreateTable("users", usersColumns()), ErrTableExists)

	// reads are not journaled
	_, err = db.GetPage("users", 1, 1, "", nil)
	require.NoError(t, err)

	recs, err := db.Journal()
	require.NoError(t, err)
	require.Len(t, recs, 8)
	require.Equal(t, "CREATE TABLE users (name TEXT, age INTEGER);", recs[0].Command)
	require.Equal(t, "INSERT INTO users (age, name) VALUES (21, 'User1');", recs[1].Command)
	require.Equal(t, "insert into users (name) values ('x');", recs[6].Command)
	for i, r := range recs {
		require.Equal(t, uint64(i+1), r.LSN)
	}
}

// faultyFs fails journal writes or snapshot renames on demand.
type faultyFs struct {
	afero.Fs
	failJournal bool
	failRename  bool
}

func (f *faultyFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	file, err := f.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: file, fs: f}, nil
}

func (f *faultyFs) Rename(oldname, newname string) error {
	if f.failRename {
		return errors.New("rename: device busy")
	}
	return f.Fs.Rename(oldname, newname)
}

type faultyFile struct {
	afero.File
	fs *faultyFs
}

func (f *faultyFile) Write(p []byte) (int, error) {
	if f.fs.failJournal && strings.HasSuffix(f.Name(), DefaultJournalFile) {
		return 0, errors.New("write: no space left on device")
	}
	return f.File.Write(p)
}

func TestDatabase_JournalFailureAbortsCommand(t *testing.T) {
	fs := &faultyFs{Fs: afero.NewMemMapFs()}
	db := newUsersDB(t, fs)

	fs.failJournal = true
	err := db.InsertInto("users", record.Row{"name": record.Text("User6")})
	require.ErrorIs(t, err, ErrIO)

	_, err = db.DeleteFrom("users", "")
	require.ErrorIs(t, err, ErrIO)

	fs.failJournal = false
	total, err := db.TotalPages("users", 1)
	require.NoError(t, err)
	require.Equal(t, 5, total)
}

func TestDatabase_SnapshotFailureSurfaces(t *testing.T) {
	fs := &faultyFs{Fs: afero.NewMemMapFs()}
	db := newUsersDB(t, fs)

	fs.failRename = true
	n, err := db.DeleteFrom("users", "name=User1")
	require.ErrorIs(t, err, ErrIO)
	require.Contains(t, err.Error(), "device busy")
	// memory moved on, disk did not
	require.Equal(t, 1, n)
	total, err := db.TotalPages("users", 1)
	require.NoError(t, err)
	require.Equal(t, 4, total)

	fs.failRename = false
	require.NoError(t, db.Close())

	reopened := openTestDB(t, fs.Fs)
	total, err = reopened.TotalPages("users", 1)
	require.NoError(t, err)
	require.Equal(t, 5, total)
}

func TestDatabase_Closed(t *testing.T) {
	db := openTestDB(t, afero.NewMemMapFs())
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	require.ErrorIs(t, db.CreateTable("users", usersColumns()), ErrDatabaseClosed)
}

func TestDatabase_ExecuteDispatch(t *testing.T) {
	db := openTestDB(t, afero.NewMemMapFs())

	res, err := db.Execute(&command.CreateTable{Name: "users", Columns: usersColumns()})
	require.NoError(t, err)
	require.Equal(t, "Table 'users' created", res.Message)

	res, err = db.Execute(&command.CreateIndex{Table: "users", Column: "age", Using: index.KindBTree})
	require.NoError(t, err)
	require.Equal(t, "Index 'users_age' created", res.Message)

	res, err = db.Execute(&command.InsertInto{Table: "users", Values: record.Row{"name": record.Text("a")}})
	require.NoError(t, err)
	require.Equal(t, 1, res.Affected)

	res, err = db.Execute(&command.SelectFrom{Table: "users", PageSize: 10, Page: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"name", "age"}, res.Columns)
	require.Len(t, res.Rows, 1)
	require.Equal(t, 1, res.TotalPages)

	// results are copies
	res.Rows[0]["name"] = record.Text("mutated")
	rows, err := db.GetPage("users", 1, 10, "", nil)
	require.NoError(t, err)
	require.Equal(t, "a", rows[0]["name"].String())
}

func TestDatabase_RejectsNonFiniteFloats(t *testing.T) {
	fs := afero.NewMemMapFs()
	db := openTestDB(t, fs)
	require.NoError(t, db.CreateTable("m", []record.Column{
		{Name: "x", Type: record.TypeFloat},
		{Name: "n", Type: record.TypeInteger},
	}))

	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		err := db.InsertInto("m", record.Row{"x": record.Float(f), "n": record.Integer(1)})
		require.ErrorIs(t, err, ErrTypeMismatch)
	}
	require.NoError(t, db.InsertInto("m", record.Row{"x": record.Float(1.5), "n": record.Integer(2)}))

	_, err := db.Update("m", record.Row{"x": record.Float(math.Inf(-1))}, "n=2")
	require.ErrorIs(t, err, ErrTypeMismatch)

	// snapshots keep working after the rejected values
	require.NoError(t, db.CreateTable("other", []record.Column{{Name: "a", Type: record.TypeInteger}}))
	require.NoError(t, db.Close())

	db2 := openTestDB(t, fs)
	require.Equal(t, []string{"m", "other"}, db2.Tables())
	rows, err := db2.GetPage("m", 1, 10, "", nil)
	require.NoError(t, err)
	require.Equal(t, []record.Row{{"x": record.Float(1.5), "n": record.Integer(2)}}, rows)
}

func TestDatabase_AccessorsLoadLateSnapshot(t *testing.T) {
	fs := afero.NewMemMapFs()
	reader := openTestDB(t, fs)
	require.False(t, reader.loaded)

	writer, err := Open(Options{Fs: fs, DataDir: "/data", JournalFile: "other.log"})
	require.NoError(t, err)
	require.NoError(t, writer.CreateTable("late", usersColumns()))
	require.NoError(t, writer.CreateIndex("late", "age"))
	require.NoError(t, writer.Close())

	schema, err := reader.Schema("late")
	require.NoError(t, err)
	require.Equal(t, []string{"name", "age"}, schema.ColumnNames())
	require.True(t, reader.loaded)

	_, ok := reader.Index("late_age")
	require.True(t, ok)
	require.Equal(t, []string{"late_age"}, reader.Indexes())
}

func TestDatabase_IndexLogsThroughConfiguredLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	db, err := Open(Options{Fs: afero.NewMemMapFs(), DataDir: "/data", TreeDegree: 2, Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.CreateTable("users", usersColumns()))
	require.NoError(t, db.CreateIndex("users", "age"))
	for i := 0; i < 10; i++ {
		require.NoError(t, db.InsertInto("users", record.Row{"age": record.Integer(int32(i))}))
	}
	require.Contains(t, buf.String(), "btree.splitChild")
}
