package conn

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/tobsdb/samplestore/internal/auth"
	"github.com/tobsdb/samplestore/internal/catalog"
	"github.com/tobsdb/samplestore/internal/engine"
	"github.com/tobsdb/samplestore/internal/query"
	"github.com/tobsdb/samplestore/internal/txn"
)

type Response struct {
	Data    any    `json:"data"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	// don't manually set this. it comes from the client
	ReqId int `json:"__tdb_client_req_id__"`
}

func NewErrorResponse(status int, err string) Response {
	return Response{Message: err, Status: status}
}

func NewResponse(status int, message string, data any) Response {
	return Response{Data: data, Message: message, Status: status}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, catalog.ErrDatabaseNotFound), errors.Is(err, catalog.ErrTableNotFound),
		errors.Is(err, engine.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrDatabaseExists), errors.Is(err, catalog.ErrTableExists),
		errors.Is(err, txn.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, auth.InsufficientPermissions):
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

func errorResponse(err error) Response {
	return NewErrorResponse(errorStatus(err), err.Error())
}

type TableRequest struct {
	DB    string `json:"db"`
	Table string `json:"table"`
}

type CreateDBRequest struct {
	Name string `json:"name"`
}

func CreateDBReqHandler(e *engine.Engine, raw []byte) Response {
	var req CreateDBRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return NewErrorResponse(http.StatusBadRequest, err.Error())
	}
	if req.Name == "" {
		return NewErrorResponse(http.StatusBadRequest, "Missing db name")
	}

	if err := e.CreateDatabase(req.Name); err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusCreated, fmt.Sprintf("Created database %s", req.Name), nil)
}

type CreateTablesRequest struct {
	DB     string `json:"db"`
	Schema string `json:"schema"`
}

func CreateTablesReqHandler(e *engine.Engine, raw []byte) Response {
	var req CreateTablesRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return NewErrorResponse(http.StatusBadRequest, err.Error())
	}
	if req.DB == "" {
		return NewErrorResponse(http.StatusBadRequest, "Missing db name")
	}

	tables, err := e.CreateUserTables(req.Schema, req.DB)
	if err != nil {
		return errorResponse(err)
	}

	infos := make([]TableInfo, 0, len(tables))
	for _, table := range tables {
		infos = append(infos, newTableInfo(e, table))
	}
	return NewResponse(http.StatusCreated, fmt.Sprintf("Created %d tables in %s", len(tables), req.DB), infos)
}

type TableInfo struct {
	DB          string   `json:"db"`
	Table       string   `json:"table"`
	DatabaseOid uint32   `json:"dbOid"`
	Oid         uint32   `json:"oid"`
	Columns     []string `json:"columns"`
	Rows        int      `json:"rows"`
	Sampled     bool     `json:"sampled"`
	SampleRows  int      `json:"sampleRows"`
	Pending     int      `json:"modifications"`
}

func newTableInfo(e *engine.Engine, table *catalog.Table) TableInfo {
	info := TableInfo{
		DB:          table.DatabaseName(),
		Table:       table.Name(),
		DatabaseOid: table.DatabaseOid(),
		Oid:         table.Oid(),
		Columns:     table.Schema().ColumnNames(),
		Rows:        table.Heap().Len(),
		Pending:     e.Refresher().ModificationCount(table.DatabaseOid(), table.Oid()),
	}
	if s, err := e.Samples(); err == nil {
		info.SampleRows, info.Sampled = s.Stats(table.DatabaseOid(), table.Oid())
	}
	return info
}

func ListTablesReqHandler(e *engine.Engine) Response {
	tables := e.Catalog().ListTables(nil, false)
	infos := make([]TableInfo, 0, len(tables))
	for _, table := range tables {
		infos = append(infos, newTableInfo(e, table))
	}
	return NewResponse(http.StatusOK, fmt.Sprintf("Found %d tables", len(infos)), infos)
}

type InsertRequest struct {
	TableRequest
	Data []map[string]any `json:"data"`
}

func InsertReqHandler(e *engine.Engine, raw []byte) Response {
	var req InsertRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return NewErrorResponse(http.StatusBadRequest, err.Error())
	}
	if len(req.Data) == 0 {
		return NewErrorResponse(http.StatusBadRequest, "No rows to insert")
	}

	n, err := e.InsertRows(req.DB, req.Table, req.Data)
	if err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusCreated, fmt.Sprintf("Created %d rows in table %s", n, req.Table), n)
}

type FindManyRequest struct {
	TableRequest
	query.FindArgs
}

func FindManyReqHandler(e *engine.Engine, raw []byte) Response {
	var req FindManyRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return NewErrorResponse(http.StatusBadRequest, err.Error())
	}

	rows, err := e.FindRows(req.DB, req.Table, req.FindArgs)
	if err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusOK, fmt.Sprintf("Found %d rows in table %s", len(rows), req.Table), rows)
}

func CollectSamplesReqHandler(e *engine.Engine, raw []byte) Response {
	var req TableRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return NewErrorResponse(http.StatusBadRequest, err.Error())
	}

	table, err := e.CollectSamples(req.DB, req.Table)
	if err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusOK, fmt.Sprintf("Collected samples for table %s", table), newTableInfo(e, table))
}

func DeleteSamplesReqHandler(e *engine.Engine, raw []byte) Response {
	var req TableRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return NewErrorResponse(http.StatusBadRequest, err.Error())
	}

	result, err := e.DeleteSamples(req.DB, req.Table)
	if err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusOK, fmt.Sprintf("Deleted samples for table %s.%s", req.DB, req.Table), result.String())
}

type TupleSamplesResponse struct {
	Columns []string  `json:"columns"`
	Tiles   [][][]any `json:"tiles"`
}

func TupleSamplesReqHandler(e *engine.Engine, raw []byte) Response {
	var req TableRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return NewErrorResponse(http.StatusBadRequest, err.Error())
	}

	table, err := e.Table(req.DB, req.Table)
	if err != nil {
		return errorResponse(err)
	}
	s, err := e.Samples()
	if err != nil {
		return errorResponse(err)
	}

	tiles := s.GetTupleSamples(table.DatabaseOid(), table.Oid())
	if tiles == nil {
		return NewErrorResponse(http.StatusNotFound, fmt.Sprintf("No samples for table %s", table))
	}

	res := TupleSamplesResponse{Columns: table.Schema().ColumnNames(), Tiles: make([][][]any, 0, len(tiles))}
	for _, tile := range tiles {
		rows := make([][]any, tile.GetTupleCount())
		for tuple_id := range rows {
			row := make([]any, tile.GetColumnCount())
			for col := range row {
				row[col] = tile.GetValue(tuple_id, col)
			}
			rows[tuple_id] = row
		}
		res.Tiles = append(res.Tiles, rows)
	}
	return NewResponse(http.StatusOK, fmt.Sprintf("Found %d sample tiles", len(tiles)), res)
}

type ColumnSamplesRequest struct {
	TableRequest
	Column string `json:"column"`
}

func ColumnSamplesReqHandler(e *engine.Engine, raw []byte) Response {
	var req ColumnSamplesRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return NewErrorResponse(http.StatusBadRequest, err.Error())
	}

	table, err := e.Table(req.DB, req.Table)
	if err != nil {
		return errorResponse(err)
	}
	column_id, ok := table.Schema().ColumnIndex(req.Column)
	if !ok {
		return NewErrorResponse(http.StatusNotFound, fmt.Sprintf("Column %s not found in table %s", req.Column, table))
	}
	s, err := e.Samples()
	if err != nil {
		return errorResponse(err)
	}

	values := []any{}
	s.GetColumnSamples(table.DatabaseOid(), table.Oid(), column_id, &values)
	return NewResponse(http.StatusOK, fmt.Sprintf("Found %d samples of column %s", len(values), req.Column), values)
}

func TriggerRefreshReqHandler(e *engine.Engine, raw []byte) Response {
	var req TableRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return NewErrorResponse(http.StatusBadRequest, err.Error())
	}

	table, err := e.Table(req.DB, req.Table)
	if err != nil {
		return errorResponse(err)
	}
	if err := e.Refresher().Trigger(table); err != nil {
		return NewErrorResponse(http.StatusInternalServerError, err.Error())
	}
	return NewResponse(http.StatusAccepted, fmt.Sprintf("Queued refresh for table %s", table), nil)
}

type CreateUserRequest struct {
	Name     string        `json:"name"`
	Password string        `json:"password"`
	Role     auth.UserRole `json:"role"`
}

func CreateUserReqHandler(e *engine.Engine, raw []byte) Response {
	var req CreateUserRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return NewErrorResponse(http.StatusBadRequest, err.Error())
	}
	if req.Name == "" {
		return NewErrorResponse(http.StatusBadRequest, "Missing user name")
	}
	if req.Role < auth.UserRoleAdmin || req.Role > auth.UserRoleReadOnly {
		return NewErrorResponse(http.StatusBadRequest, fmt.Sprintf("Invalid role: %d", req.Role))
	}

	user, err := e.CreateUser(req.Name, req.Password, req.Role)
	if err != nil {
		return NewErrorResponse(http.StatusConflict, err.Error())
	}
	return NewResponse(http.StatusCreated, fmt.Sprintf("Created new user %s", user.Name), user.Id)
}

type DeleteUserRequest struct {
	Name string `json:"name"`
}

func DeleteUserReqHandler(e *engine.Engine, raw []byte) Response {
	var req DeleteUserRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return NewErrorResponse(http.StatusBadRequest, err.Error())
	}

	if err := e.DeleteUser(req.Name); err != nil {
		return errorResponse(err)
	}
	return NewResponse(http.StatusOK, fmt.Sprintf("Deleted user %s", req.Name), nil)
}
