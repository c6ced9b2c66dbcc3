package server

import (
	"errors"
	"fmt"

	"PastureDB/dberror"
	storageengine "PastureDB/storage_engine"
	"PastureDB/types"

	jsoniter "github.com/json-iterator/go"
)

/*
Wire format of the connection front.

Every request and reply is a Message. A reply names the request it answers in ReplyTo.

	request types : EXECUTE, PREPARE, CREATE_TABLESPACE, DROP_TABLESPACE, CHECKPOINT
	reply types   : RESULT, PREPARED, ACK, ERROR

Values travel as JSON: numbers are decoded as json.Number so integers keep their precision
until they are coerced to the column type. Replies render timestamps as RFC 3339 strings and
bytes as base64.
*/

// JSON is the codec of the wire format, shared with the client
var JSON = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

const (
	TypeExecute          = "EXECUTE"
	TypePrepare          = "PREPARE"
	TypeCreateTableSpace = "CREATE_TABLESPACE"
	TypeDropTableSpace   = "DROP_TABLESPACE"
	TypeCheckpoint       = "CHECKPOINT"

	TypeResult   = "RESULT"
	TypePrepared = "PREPARED"
	TypeAck      = "ACK"
	TypeError    = "ERROR"
)

type Message struct {
	ID         string        `json:"id,omitempty"`
	Type       string        `json:"type"`
	ReplyTo    string        `json:"replyTo,omitempty"`
	TableSpace string        `json:"tableSpace,omitempty"`
	Statement  *StatementDTO `json:"statement,omitempty"`
	PlanID     uint64        `json:"planId,omitempty"`
	Parameters []any         `json:"parameters,omitempty"`
	Result     *ResultDTO    `json:"result,omitempty"`
	LSN        uint64        `json:"lsn,omitempty"`
	Error      string        `json:"error,omitempty"`
	Code       string        `json:"code,omitempty"`
	Kind       string        `json:"kind,omitempty"`
}

// Statement kinds
const (
	KindCreateTable = "createTable"
	KindAlterTable  = "alterTable"
	KindDropTable   = "dropTable"
	KindCreateIndex = "createIndex"
	KindDropIndex   = "dropIndex"
	KindInsert      = "insert"
	KindUpdate      = "update"
	KindDelete      = "delete"
	KindGet         = "get"
	KindScan        = "scan"
)

type StatementDTO struct {
	Kind        string          `json:"kind"`
	Table       string          `json:"table,omitempty"`
	IfNotExists bool            `json:"ifNotExists,omitempty"`
	IfExists    bool            `json:"ifExists,omitempty"`
	Columns     []ColumnDTO     `json:"columns,omitempty"`
	PrimaryKey  []string        `json:"primaryKey,omitempty"`
	DropColumns []string        `json:"dropColumns,omitempty"`
	Index       string          `json:"index,omitempty"`
	IndexType   string          `json:"indexType,omitempty"`
	Values      []AssignmentDTO `json:"values,omitempty"`
	Set         []AssignmentDTO `json:"set,omitempty"`
	Where       []AssignmentDTO `json:"where,omitempty"`
	Limit       int             `json:"limit,omitempty"`
}

type ColumnDTO struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// AssignmentDTO is a column bound to a literal or, when Param is set, to a zero-based parameter
type AssignmentDTO struct {
	Column string `json:"column"`
	Value  any    `json:"value,omitempty"`
	Param  *int   `json:"param,omitempty"`
}

type ResultDTO struct {
	LSN         uint64           `json:"lsn,omitempty"`
	UpdateCount int              `json:"updateCount"`
	Columns     []string         `json:"columns,omitempty"`
	Rows        []map[string]any `json:"rows,omitempty"`
	Found       bool             `json:"found,omitempty"`
	UsedIndex   string           `json:"usedIndex,omitempty"`
	PlanID      uint64           `json:"planId,omitempty"`
	Plan        string           `json:"plan,omitempty"`
}

func (a AssignmentDTO) expr() types.Expr {
	if a.Param != nil {
		return types.Param(*a.Param)
	}
	return types.Lit(a.Value)
}

func assignments(in []AssignmentDTO) []types.Assignment {
	out := make([]types.Assignment, len(in))
	for i, a := range in {
		out[i] = types.Eq(a.Column, a.expr())
	}
	return out
}

func invalid(tableSpace, format string, args ...any) error {
	return dberror.New(dberror.ErrStatementValidation, format, args...).WithTableSpace(tableSpace)
}

// ToStatement builds the statement a DTO describes. Index columns take their type from the
// current table definition, so catalog is consulted for createIndex only.
func ToStatement(tableSpace string, dto *StatementDTO, catalog func(string) (*types.Catalog, error)) (types.Statement, error) {
	if dto == nil {
		return nil, invalid(tableSpace, "missing statement")
	}
	if dto.Table == "" && dto.Kind != KindDropIndex {
		return nil, invalid(tableSpace, "%s without table", dto.Kind)
	}

	switch dto.Kind {
	case KindCreateTable:
		b := types.NewTableBuilder().Name(dto.Table).TableSpace(tableSpace).PrimaryKey(dto.PrimaryKey...)
		for _, c := range dto.Columns {
			t, err := types.ParseColumnType(c.Type)
			if err != nil {
				return nil, dberror.Wrap(dberror.ErrTableDefinition, err, "column %s", c.Name).WithTableSpace(tableSpace)
			}
			b.Column(c.Name, t)
		}
		table, err := b.Build()
		if err != nil {
			return nil, err
		}
		return &types.CreateTableStatement{Table: table, IfNotExists: dto.IfNotExists}, nil

	case KindAlterTable:
		s := &types.AlterTableStatement{TableSpaceName: tableSpace, Table: dto.Table, DropColumns: dto.DropColumns}
		for _, c := range dto.Columns {
			t, err := types.ParseColumnType(c.Type)
			if err != nil {
				return nil, dberror.Wrap(dberror.ErrTableDefinition, err, "column %s", c.Name).WithTableSpace(tableSpace)
			}
			s.AddColumns = append(s.AddColumns, types.Column{Name: c.Name, Type: t})
		}
		return s, nil

	case KindDropTable:
		return &types.DropTableStatement{TableSpaceName: tableSpace, Table: dto.Table, IfExists: dto.IfExists}, nil

	case KindCreateIndex:
		current, err := catalog(tableSpace)
		if err != nil {
			return nil, err
		}
		table, ok := current.Table(dto.Table)
		if !ok {
			return nil, dberror.New(dberror.ErrIndexDefinition, "table %s does not exist", dto.Table).WithTableSpace(tableSpace)
		}
		b := types.NewIndexBuilder().Name(dto.Index).Table(dto.Table).TableSpace(tableSpace)
		if dto.IndexType != "" {
			b.Type(types.IndexType(dto.IndexType))
		}
		for _, c := range dto.Columns {
			tc, ok := table.Column(c.Name)
			if !ok {
				return nil, dberror.New(dberror.ErrIndexDefinition, "column %s not found in table %s", c.Name, dto.Table).WithTableSpace(tableSpace)
			}
			b.TableColumn(tc)
		}
		idx, err := b.Build()
		if err != nil {
			return nil, err
		}
		return &types.CreateIndexStatement{Index: idx}, nil

	case KindDropIndex:
		if dto.Index == "" {
			return nil, invalid(tableSpace, "dropIndex without index name")
		}
		return &types.DropIndexStatement{TableSpaceName: tableSpace, Name: dto.Index, IfExists: dto.IfExists}, nil

	case KindInsert:
		s := &types.InsertStatement{TableSpaceName: tableSpace, Table: dto.Table}
		for _, v := range dto.Values {
			s.Columns = append(s.Columns, v.Column)
			s.Values = append(s.Values, v.expr())
		}
		return s, nil

	case KindUpdate:
		return &types.UpdateStatement{TableSpaceName: tableSpace, Table: dto.Table, Set: assignments(dto.Set), Where: assignments(dto.Where)}, nil
	case KindDelete:
		return &types.DeleteStatement{TableSpaceName: tableSpace, Table: dto.Table, Where: assignments(dto.Where)}, nil
	case KindGet:
		return &types.GetStatement{TableSpaceName: tableSpace, Table: dto.Table, Where: assignments(dto.Where)}, nil
	case KindScan:
		return &types.ScanStatement{TableSpaceName: tableSpace, Table: dto.Table, Where: assignments(dto.Where), Limit: dto.Limit}, nil
	}
	return nil, invalid(tableSpace, "unknown statement kind %q", dto.Kind)
}

func toResultDTO(res *storageengine.StatementResult) *ResultDTO {
	out := &ResultDTO{
		LSN:         res.LSN,
		UpdateCount: res.UpdateCount,
		Columns:     res.Columns,
		Found:       res.Found,
		UsedIndex:   res.UsedIndex,
	}
	for _, row := range res.Rows {
		out.Rows = append(out.Rows, row.ToMap())
	}
	return out
}

func errorReply(requestID string, err error) *Message {
	reply := &Message{Type: TypeError, ReplyTo: requestID, Error: err.Error()}
	var dbErr *dberror.DBError
	if errors.As(err, &dbErr) {
		reply.Code = dbErr.Code.Error()
		reply.Kind = dbErr.Kind.String()
		reply.TableSpace = dbErr.TableSpace
	}
	return reply
}

func (m *Message) String() string {
	if m.ReplyTo != "" {
		return fmt.Sprintf("%s(reply to %s)", m.Type, m.ReplyTo)
	}
	return fmt.Sprintf("%s(%s)", m.Type, m.ID)
}
