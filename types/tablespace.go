package types

import (
	"bytes"
	"slices"

	"PastureDB/codec"
	"PastureDB/dberror"

	"github.com/google/uuid"
)

const DefaultTableSpace = "default"

// TableSpace is the unit of durability: one WAL, one checkpoint stream, one catalog
type TableSpace struct {
	uuid                 string
	name                 string
	leader               string
	replicas             []string
	expectedReplicaCount int
}

func (ts *TableSpace) UUID() string              { return ts.uuid }
func (ts *TableSpace) Name() string              { return ts.name }
func (ts *TableSpace) Leader() string            { return ts.leader }
func (ts *TableSpace) Replicas() []string        { return slices.Clone(ts.replicas) }
func (ts *TableSpace) ExpectedReplicaCount() int { return ts.expectedReplicaCount }

func (ts *TableSpace) Equal(other *TableSpace) bool {
	return other != nil &&
		ts.uuid == other.uuid &&
		ts.name == other.name &&
		ts.leader == other.leader &&
		ts.expectedReplicaCount == other.expectedReplicaCount &&
		slices.Equal(ts.replicas, other.replicas)
}

func (ts *TableSpace) String() string {
	return "TableSpace{" + ts.name + " uuid=" + ts.uuid + " leader=" + ts.leader + "}"
}

func (ts *TableSpace) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	err := writeAll(
		func() error { return w.WriteUTF(ts.uuid) },
		func() error { return w.WriteUTF(ts.name) },
		func() error { return w.WriteUTF(ts.leader) },
		w.WriteFlags,
		func() error { return w.WriteVInt(len(ts.replicas)) },
	)
	for _, r := range ts.replicas {
		if err != nil {
			break
		}
		err = w.WriteUTF(r)
	}
	if err == nil {
		err = w.WriteVInt(ts.expectedReplicaCount)
	}
	if err != nil {
		return nil, dberror.Wrap(dberror.ErrStorageEncoding, err, "serializing table space").WithTableSpace(ts.name)
	}
	return buf.Bytes(), nil
}

func DeserializeTableSpace(data []byte) (*TableSpace, error) {
	r := codec.NewBytesReader(data)
	malformed := func(err error) (*TableSpace, error) {
		return nil, dberror.Wrap(dberror.ErrMalformedStream, err, "cannot read table space definition")
	}

	id, err := r.ReadUTF()
	if err != nil {
		return malformed(err)
	}
	name, err := r.ReadUTF()
	if err != nil {
		return malformed(err)
	}
	leader, err := r.ReadUTF()
	if err != nil {
		return malformed(err)
	}
	if err := r.SkipFlags(); err != nil {
		return malformed(err)
	}
	n, err := r.ReadVInt()
	if err != nil {
		return malformed(err)
	}
	b := NewTableSpaceBuilder().UUID(id).Name(name).Leader(leader)
	for range n {
		replica, err := r.ReadUTF()
		if err != nil {
			return malformed(err)
		}
		b.Replica(replica)
	}
	expected, err := r.ReadVInt()
	if err != nil {
		return malformed(err)
	}
	ts, err := b.ExpectedReplicaCount(expected).Build()
	if err != nil {
		return malformed(err)
	}
	return ts, nil
}

type TableSpaceBuilder struct {
	uuid                 string
	name                 string
	leader               string
	replicas             []string
	expectedReplicaCount int
}

func NewTableSpaceBuilder() *TableSpaceBuilder {
	return &TableSpaceBuilder{expectedReplicaCount: 1}
}

func (b *TableSpaceBuilder) UUID(id string) *TableSpaceBuilder {
	b.uuid = id
	return b
}

func (b *TableSpaceBuilder) Name(name string) *TableSpaceBuilder {
	b.name = name
	return b
}

func (b *TableSpaceBuilder) Leader(nodeID string) *TableSpaceBuilder {
	b.leader = nodeID
	return b
}

func (b *TableSpaceBuilder) Replica(nodeID string) *TableSpaceBuilder {
	if !slices.Contains(b.replicas, nodeID) {
		b.replicas = append(b.replicas, nodeID)
	}
	return b
}

func (b *TableSpaceBuilder) ExpectedReplicaCount(n int) *TableSpaceBuilder {
	b.expectedReplicaCount = n
	return b
}

func (b *TableSpaceBuilder) Build() (*TableSpace, error) {
	if err := ValidateTableSpaceName(b.name); err != nil {
		return nil, err
	}
	if b.leader == "" {
		return nil, dberror.New(dberror.ErrTableSpaceDefinition, "leader not defined").WithTableSpace(b.name)
	}
	if b.expectedReplicaCount < 1 {
		return nil, dberror.New(dberror.ErrTableSpaceDefinition, "expected replica count must be positive").WithTableSpace(b.name)
	}
	id := b.uuid
	if id == "" {
		id = uuid.NewString()
	}
	replicas := slices.Clone(b.replicas)
	if !slices.Contains(replicas, b.leader) {
		replicas = append([]string{b.leader}, replicas...)
	}
	return &TableSpace{
		uuid:                 id,
		name:                 b.name,
		leader:               b.leader,
		replicas:             replicas,
		expectedReplicaCount: b.expectedReplicaCount,
	}, nil
}

// ValidateTableSpaceName accepts names that are safe to use as a directory name
func ValidateTableSpaceName(name string) error {
	if name == "" {
		return dberror.New(dberror.ErrTableSpaceDefinition, "table space name not defined")
	}
	if name == "." || name == ".." {
		return dberror.New(dberror.ErrTableSpaceDefinition, "invalid table space name %q", name)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
		default:
			return dberror.New(dberror.ErrTableSpaceDefinition, "invalid character %q in table space name %q", r, name)
		}
	}
	return nil
}
