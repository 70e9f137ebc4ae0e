package compute

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/steffengr/feature-store-api/dataframe"
	"github.com/steffengr/feature-store-api/entity"
)

// Row operations recorded in the "_op" column. Upserted rows supersede
// earlier versions of the same primary key, deletes tombstone it, appended
// rows keep duplicates and stay visible until tombstoned.
const (
	opUpsert int16 = 0
	opDelete int16 = 1
	opAppend int16 = 2
)

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// commitRecord is one entry of the offline store commit log.
type commitRecord struct {
	CommitID     int64     `gorm:"column:commit_id;primaryKey;autoIncrement:false"`
	FgTable      string    `gorm:"column:fg_table;primaryKey"`
	CommittedOn  time.Time `gorm:"column:committed_on"`
	RowsInserted int64     `gorm:"column:rows_inserted"`
	RowsUpdated  int64     `gorm:"column:rows_updated"`
	RowsDeleted  int64     `gorm:"column:rows_deleted"`
}

func (commitRecord) TableName() string {
	return "fg_commits"
}

// Migrate creates the engine's bookkeeping tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&commitRecord{})
}

// Engine implements entity.ComputeEngine. The offline store is a Postgres
// table per feature group carrying commit-versioned rows, which gives latest,
// as-of and incremental reads; the online store is a Redis hash per feature
// group keyed by primary key tuple.
type Engine struct {
	db     *gorm.DB
	online OnlineStore
	logger *zap.Logger
}

// NewEngine builds a compute engine. online may be nil when no serving store
// is configured.
func NewEngine(db *gorm.DB, online OnlineStore, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{db: db, online: online, logger: logger}
}

// ConvertToDefaultDataframe normalizes any accepted tabular input shape into
// the engine's canonical dataframe.
func (e *Engine) ConvertToDefaultDataframe(features interface{}) (*dataframe.DataFrame, error) {
	df, err := dataframe.Normalize(features)
	if err != nil {
		return nil, &entity.ValidationError{Field: "features", Reason: err.Error()}
	}
	return df, nil
}

// SelectAll starts a query over the full feature group.
func (e *Engine) SelectAll(fg *entity.FeatureGroup) entity.Query {
	return &Query{engine: e, fg: fg}
}

// Write materializes a dataframe into the offline and/or online store as
// requested and records the offline write in the commit log.
func (e *Engine) Write(ctx context.Context, fg *entity.FeatureGroup, df *dataframe.DataFrame, req entity.WriteRequest) (*entity.Commit, error) {
	writeOffline := req.Storage == "" || req.Storage == entity.StorageOffline
	writeOnline := req.Storage == entity.StorageOnline || (req.Storage == "" && fg.OnlineEnabled)

	var commit *entity.Commit
	if writeOffline {
		var err error
		commit, err = e.writeOffline(ctx, fg, df, req)
		if err != nil {
			return nil, err
		}
	}
	if writeOnline {
		if err := e.writeOnline(ctx, fg, df, req.Overwrite); err != nil {
			return nil, err
		}
	}
	if commit == nil {
		now := time.Now().UTC()
		commit = &entity.Commit{
			CommitID:         now.UnixMilli(),
			CommitDateString: FormatWallclockTime(now),
			RowsInserted:     int64(df.NumRows()),
		}
	}
	return commit, nil
}

// DeleteRecords tombstones the rows matching the primary keys present in df
// and records the deletion as a commit.
func (e *Engine) DeleteRecords(ctx context.Context, fg *entity.FeatureGroup, df *dataframe.DataFrame, options map[string]interface{}) (*entity.Commit, error) {
	if fg.TimeTravelFormat() != entity.TimeTravelFormatHudi {
		return nil, &entity.RemoteError{
			Op:      "delete records",
			Message: "feature group storage format does not support row-level deletion with commit history",
		}
	}
	if len(fg.PrimaryKey) == 0 {
		return nil, &entity.ValidationError{Field: "primary_key", Reason: "record deletion requires a primary key"}
	}

	table, err := offlineTableName(fg)
	if err != nil {
		return nil, err
	}
	pkIdx, err := columnIndexes(df, fg.PrimaryKey)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	commitID := now.UnixMilli()

	columns := make([]string, 0, len(fg.PrimaryKey)+2)
	quoted := make([]string, 0, len(fg.PrimaryKey)+2)
	for _, pk := range fg.PrimaryKey {
		q, err := quoteIdent(pk)
		if err != nil {
			return nil, err
		}
		columns = append(columns, pk)
		quoted = append(quoted, q)
	}
	quoted = append(quoted, `"_commit_time"`, `"_op"`)

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		placeholders := make([]string, 0, df.NumRows())
		args := make([]interface{}, 0, df.NumRows()*(len(columns)+2))
		for _, row := range df.Rows {
			marks := make([]string, 0, len(columns)+2)
			for _, idx := range pkIdx {
				marks = append(marks, "?")
				args = append(args, row[idx])
			}
			marks = append(marks, "?", "?")
			args = append(args, commitID, opDelete)
			placeholders = append(placeholders, "("+strings.Join(marks, ", ")+")")
		}
		insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
		if err := tx.Exec(insert, args...).Error; err != nil {
			return &entity.RemoteError{Op: "delete records", Cause: err}
		}
		record := commitRecord{
			CommitID:    commitID,
			FgTable:     table,
			CommittedOn: now,
			RowsDeleted: int64(df.NumRows()),
		}
		if err := tx.Create(&record).Error; err != nil {
			return &entity.RemoteError{Op: "delete records", Cause: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if fg.OnlineEnabled && e.online != nil {
		fields := make([]string, 0, df.NumRows())
		for _, row := range df.Rows {
			fields = append(fields, primaryKeyTuple(row, pkIdx))
		}
		if err := e.online.HDel(ctx, onlineKey(fg), fields...); err != nil {
			return nil, &entity.RemoteError{Op: "delete records", Cause: err}
		}
	}

	e.logger.Info("committed record deletion",
		zap.String("table", table),
		zap.Int64("commit_id", commitID),
		zap.Int("rows", df.NumRows()),
	)
	return &entity.Commit{
		CommitID:         commitID,
		CommitDateString: FormatWallclockTime(now),
		RowsDeleted:      int64(df.NumRows()),
	}, nil
}

func (e *Engine) writeOffline(ctx context.Context, fg *entity.FeatureGroup, df *dataframe.DataFrame, req entity.WriteRequest) (*entity.Commit, error) {
	table, err := offlineTableName(fg)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	commitID := now.UnixMilli()
	rowsInserted := int64(df.NumRows())
	var rowsUpdated int64

	rowOp := opUpsert
	if req.Operation == entity.OperationInsert {
		rowOp = opAppend
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.ensureTable(tx, table, fg, df); err != nil {
			return err
		}
		if req.Overwrite {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return &entity.RemoteError{Op: "write feature group", Cause: err}
			}
		}

		if req.Operation == entity.OperationUpsert && !req.Overwrite && len(fg.PrimaryKey) > 0 {
			updated, err := e.countExisting(tx, table, fg, df)
			if err != nil {
				return err
			}
			rowsUpdated = updated
			rowsInserted = int64(df.NumRows()) - updated
		}

		if df.NumRows() > 0 {
			if err := e.insertRows(tx, table, df, commitID, rowOp); err != nil {
				return err
			}
		}

		record := commitRecord{
			CommitID:     commitID,
			FgTable:      table,
			CommittedOn:  now,
			RowsInserted: rowsInserted,
			RowsUpdated:  rowsUpdated,
		}
		if err := tx.Create(&record).Error; err != nil {
			return &entity.RemoteError{Op: "write feature group", Cause: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("materialized feature group offline",
		zap.String("table", table),
		zap.Int64("commit_id", commitID),
		zap.Int64("rows_inserted", rowsInserted),
		zap.Int64("rows_updated", rowsUpdated),
	)
	return &entity.Commit{
		CommitID:         commitID,
		CommitDateString: FormatWallclockTime(now),
		RowsInserted:     rowsInserted,
		RowsUpdated:      rowsUpdated,
	}, nil
}

func (e *Engine) writeOnline(ctx context.Context, fg *entity.FeatureGroup, df *dataframe.DataFrame, overwrite bool) error {
	if e.online == nil {
		return &entity.RemoteError{Op: "write online store", Message: "online store is not configured"}
	}
	if len(fg.PrimaryKey) == 0 {
		return &entity.ValidationError{Field: "primary_key", Reason: "online writes require a primary key"}
	}
	pkIdx, err := columnIndexes(df, fg.PrimaryKey)
	if err != nil {
		return err
	}

	key := onlineKey(fg)
	if overwrite {
		if err := e.online.Del(ctx, key); err != nil {
			return &entity.RemoteError{Op: "write online store", Cause: err}
		}
	}

	values := make(map[string]string, df.NumRows())
	for _, row := range df.Rows {
		record := make(map[string]interface{}, len(df.Columns))
		for i, col := range df.Columns {
			record[col] = row[i]
		}
		encoded, err := json.Marshal(record)
		if err != nil {
			return &entity.RemoteError{Op: "write online store", Cause: err}
		}
		values[primaryKeyTuple(row, pkIdx)] = string(encoded)
	}
	if err := e.online.HSet(ctx, key, values); err != nil {
		return &entity.RemoteError{Op: "write online store", Cause: err}
	}
	return nil
}

// readOffline reconstructs the offline state, latest or as of a wallclock
// time. Upserted rows supersede earlier versions of the same primary key;
// tombstoned rows are excluded.
func (e *Engine) readOffline(ctx context.Context, fg *entity.FeatureGroup, asOf string) (*dataframe.DataFrame, error) {
	table, err := offlineTableName(fg)
	if err != nil {
		return nil, err
	}

	var maxCommit int64 = 1<<63 - 1
	if asOf != "" {
		t, err := ParseWallclockTime(asOf)
		if err != nil {
			return nil, err
		}
		maxCommit = t.UnixMilli()
	}

	var commits int64
	if err := e.db.WithContext(ctx).Model(&commitRecord{}).
		Where("fg_table = ? AND commit_id <= ?", table, maxCommit).
		Count(&commits).Error; err != nil {
		return nil, &entity.RemoteError{Op: "read feature group", Cause: err}
	}
	if commits == 0 {
		if asOf != "" {
			return nil, &entity.RemoteError{
				Op:      "read feature group",
				Message: "no data available for feature group at the requested point in time",
			}
		}
		return dataframe.New(featureNames(fg)), nil
	}

	selectCols, err := quotedFeatureColumns(fg)
	if err != nil {
		return nil, err
	}

	var sql string
	var args []interface{}
	if len(fg.PrimaryKey) > 0 {
		pkCols := make([]string, len(fg.PrimaryKey))
		pkMatch := make([]string, len(fg.PrimaryKey))
		for i, pk := range fg.PrimaryKey {
			q, err := quoteIdent(pk)
			if err != nil {
				return nil, err
			}
			pkCols[i] = q
			pkMatch[i] = fmt.Sprintf("d.%s = a.%s", q, q)
		}
		pkList := strings.Join(pkCols, ", ")
		// Upsert and delete rows resolve to the newest version per key;
		// appended rows keep their duplicates and survive until a later
		// tombstone on the same key.
		sql = fmt.Sprintf(
			`SELECT %s FROM (SELECT DISTINCT ON (%s) %s, "_op" FROM %s WHERE "_commit_time" <= ? AND "_op" IN (%d, %d) ORDER BY %s, "_commit_time" DESC) latest WHERE "_op" = %d`+
				` UNION ALL `+
				`SELECT %s FROM %s a WHERE a."_commit_time" <= ? AND a."_op" = %d AND NOT EXISTS (SELECT 1 FROM %s d WHERE d."_op" = %d AND d."_commit_time" <= ? AND d."_commit_time" >= a."_commit_time" AND %s)`,
			selectCols, pkList, selectCols, table, opUpsert, opDelete, pkList, opUpsert,
			selectCols, table, opAppend, table, opDelete, strings.Join(pkMatch, " AND "),
		)
		args = []interface{}{maxCommit, maxCommit, maxCommit}
	} else {
		sql = fmt.Sprintf(`SELECT %s FROM %s WHERE "_commit_time" <= ? AND "_op" IN (%d, %d)`, selectCols, table, opUpsert, opAppend)
		args = []interface{}{maxCommit}
	}

	var rows []map[string]interface{}
	if err := e.db.WithContext(ctx).Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, &entity.RemoteError{Op: "read feature group", Cause: err}
	}
	return rowsToDataframe(fg, rows), nil
}

// readChanges returns the rows committed in the half-open interval
// (start, end]. Only feature groups with a change-capture time travel format
// support this.
func (e *Engine) readChanges(ctx context.Context, fg *entity.FeatureGroup, start, end string) (*dataframe.DataFrame, error) {
	if fg.TimeTravelFormat() != entity.TimeTravelFormatHudi {
		return nil, &entity.RemoteError{
			Op:      "pull changes",
			Message: "feature group storage format does not support incremental change capture",
		}
	}
	startTime, err := ParseWallclockTime(start)
	if err != nil {
		return nil, err
	}
	endTime, err := ParseWallclockTime(end)
	if err != nil {
		return nil, err
	}
	if !startTime.Before(endTime) {
		return nil, &entity.ValidationError{Field: "wallclock_time", Reason: "start must be before end"}
	}

	table, err := offlineTableName(fg)
	if err != nil {
		return nil, err
	}
	selectCols, err := quotedFeatureColumns(fg)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(
		`SELECT %s FROM %s WHERE "_commit_time" > ? AND "_commit_time" <= ? ORDER BY "_commit_time"`,
		selectCols, table,
	)
	var rows []map[string]interface{}
	if err := e.db.WithContext(ctx).Raw(sql, startTime.UnixMilli(), endTime.UnixMilli()).Scan(&rows).Error; err != nil {
		return nil, &entity.RemoteError{Op: "pull changes", Cause: err}
	}
	return rowsToDataframe(fg, rows), nil
}

// readOnline reads the full serving-store contents of the feature group.
func (e *Engine) readOnline(ctx context.Context, fg *entity.FeatureGroup) (*dataframe.DataFrame, error) {
	if e.online == nil {
		return nil, &entity.RemoteError{Op: "read online store", Message: "online store is not configured"}
	}
	values, err := e.online.HGetAll(ctx, onlineKey(fg))
	if err != nil {
		return nil, &entity.RemoteError{Op: "read online store", Cause: err}
	}

	df := dataframe.New(featureNames(fg))
	for _, encoded := range values {
		var record map[string]interface{}
		if err := json.Unmarshal([]byte(encoded), &record); err != nil {
			return nil, &entity.RemoteError{Op: "read online store", Message: "undecodable row", Cause: err}
		}
		row := make([]interface{}, len(df.Columns))
		for i, col := range df.Columns {
			row[i] = record[col]
		}
		df.Rows = append(df.Rows, row)
	}
	return df, nil
}

func (e *Engine) ensureTable(tx *gorm.DB, table string, fg *entity.FeatureGroup, df *dataframe.DataFrame) error {
	types := make(map[string]string, len(fg.Features))
	for _, feat := range fg.Features {
		types[feat.Name] = sqlType(feat.Type)
	}

	defs := make([]string, 0, len(df.Columns)+2)
	for _, col := range df.Columns {
		q, err := quoteIdent(col)
		if err != nil {
			return err
		}
		colType, ok := types[col]
		if !ok {
			colType = "TEXT"
		}
		defs = append(defs, q+" "+colType)
	}
	defs = append(defs, `"_commit_time" BIGINT NOT NULL`, `"_op" SMALLINT NOT NULL DEFAULT 0`)

	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", "))
	if err := tx.Exec(create).Error; err != nil {
		return &entity.RemoteError{Op: "write feature group", Cause: err}
	}
	return nil
}

func (e *Engine) insertRows(tx *gorm.DB, table string, df *dataframe.DataFrame, commitID int64, rowOp int16) error {
	quoted := make([]string, 0, len(df.Columns)+2)
	for _, col := range df.Columns {
		q, err := quoteIdent(col)
		if err != nil {
			return err
		}
		quoted = append(quoted, q)
	}
	quoted = append(quoted, `"_commit_time"`, `"_op"`)

	placeholders := make([]string, 0, df.NumRows())
	args := make([]interface{}, 0, df.NumRows()*(len(df.Columns)+2))
	for _, row := range df.Rows {
		marks := make([]string, 0, len(row)+2)
		for _, v := range row {
			marks = append(marks, "?")
			args = append(args, v)
		}
		marks = append(marks, "?", "?")
		args = append(args, commitID, rowOp)
		placeholders = append(placeholders, "("+strings.Join(marks, ", ")+")")
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	if err := tx.Exec(insert, args...).Error; err != nil {
		return &entity.RemoteError{Op: "write feature group", Cause: err}
	}
	return nil
}

func (e *Engine) countExisting(tx *gorm.DB, table string, fg *entity.FeatureGroup, df *dataframe.DataFrame) (int64, error) {
	pkIdx, err := columnIndexes(df, fg.PrimaryKey)
	if err != nil {
		return 0, err
	}
	pkCols := make([]string, len(fg.PrimaryKey))
	for i, pk := range fg.PrimaryKey {
		q, err := quoteIdent(pk)
		if err != nil {
			return 0, err
		}
		pkCols[i] = q
	}

	var existing []map[string]interface{}
	sql := fmt.Sprintf("SELECT DISTINCT %s FROM %s", strings.Join(pkCols, ", "), table)
	if err := tx.Raw(sql).Scan(&existing).Error; err != nil {
		return 0, &entity.RemoteError{Op: "write feature group", Cause: err}
	}

	seen := make(map[string]bool, len(existing))
	for _, rec := range existing {
		parts := make([]string, len(fg.PrimaryKey))
		for i, pk := range fg.PrimaryKey {
			parts[i] = fmt.Sprintf("%v", rec[pk])
		}
		seen[strings.Join(parts, "\x1f")] = true
	}

	var updated int64
	for _, row := range df.Rows {
		if seen[primaryKeyTuple(row, pkIdx)] {
			updated++
		}
	}
	return updated, nil
}

func offlineTableName(fg *entity.FeatureGroup) (string, error) {
	name := strings.ToLower(fg.Name)
	if !identPattern.MatchString(name) {
		return "", &entity.ValidationError{Field: "name", Reason: "is not a valid table identifier"}
	}
	return fmt.Sprintf("fg_%s_%d", name, fg.Version), nil
}

func onlineKey(fg *entity.FeatureGroup) string {
	return fmt.Sprintf("fg:%d:%s_%d", fg.FeatureStoreID, strings.ToLower(fg.Name), fg.Version)
}

func quoteIdent(name string) (string, error) {
	if !identPattern.MatchString(name) {
		return "", &entity.ValidationError{Field: "feature", Reason: fmt.Sprintf("%q is not a valid column identifier", name)}
	}
	return `"` + name + `"`, nil
}

func featureNames(fg *entity.FeatureGroup) []string {
	names := make([]string, len(fg.Features))
	for i, feat := range fg.Features {
		names[i] = feat.Name
	}
	return names
}

func quotedFeatureColumns(fg *entity.FeatureGroup) (string, error) {
	cols := make([]string, len(fg.Features))
	for i, feat := range fg.Features {
		q, err := quoteIdent(feat.Name)
		if err != nil {
			return "", err
		}
		cols[i] = q
	}
	return strings.Join(cols, ", "), nil
}

func columnIndexes(df *dataframe.DataFrame, names []string) ([]int, error) {
	indexes := make([]int, len(names))
	for i, name := range names {
		idx := -1
		for j, col := range df.Columns {
			if col == name {
				idx = j
				break
			}
		}
		if idx == -1 {
			return nil, &entity.ValidationError{Field: "features", Reason: fmt.Sprintf("rows are missing primary key column %q", name)}
		}
		indexes[i] = idx
	}
	return indexes, nil
}

func primaryKeyTuple(row []interface{}, pkIdx []int) string {
	parts := make([]string, len(pkIdx))
	for i, idx := range pkIdx {
		parts[i] = fmt.Sprintf("%v", row[idx])
	}
	return strings.Join(parts, "\x1f")
}

func rowsToDataframe(fg *entity.FeatureGroup, rows []map[string]interface{}) *dataframe.DataFrame {
	df := dataframe.New(featureNames(fg))
	for _, rec := range rows {
		row := make([]interface{}, len(df.Columns))
		for i, col := range df.Columns {
			row[i] = rec[col]
		}
		df.Rows = append(df.Rows, row)
	}
	return df
}

func sqlType(featureType string) string {
	switch strings.ToLower(featureType) {
	case "int", "integer", "bigint", "long", "smallint":
		return "BIGINT"
	case "float", "double", "decimal":
		return "DOUBLE PRECISION"
	case "boolean", "bool":
		return "BOOLEAN"
	case "timestamp", "date":
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}
