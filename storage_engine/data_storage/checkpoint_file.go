package datastorage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"maps"
	"slices"

	"PastureDB/codec"
	"PastureDB/dberror"
	"PastureDB/types"
)

/*
Checkpoint data file  (checkpoint_<LSN, 16 hex digits>.data)

	magic (8) | version | flags | LSN | tablespace | catalog bytes
	ntables  | { name | nrows | { key | row } * nrows } * ntables
	nindexes | { name | nkeys | { key | npks | { pk } * npks } * nkeys } * nindexes
	CRC32 (4, big-endian, over everything before it)

Tables and indexes are written in name order and keys in sorted order, so two
checkpoints of the same state are byte-identical.
*/

func checkpointFileName(lsn uint64) string {
	return fmt.Sprintf("%s%016x%s", checkpointFilePrefix, lsn, checkpointFileSuffix)
}

func encodeSnapshot(snap *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)

	catalogBytes, err := snap.Catalog.Serialize()
	if err != nil {
		return nil, err
	}

	steps := []func() error{
		func() error { return w.WriteLong(checkpointMagic) },
		func() error { return w.WriteVInt(checkpointVersion) },
		w.WriteFlags,
		func() error { return w.WriteVLong(int64(snap.LSN)) },
		func() error { return w.WriteUTF(snap.TableSpace) },
		func() error { return w.WriteBytes(catalogBytes) },
		func() error { return w.WriteVInt(len(snap.Tables)) },
	}
	for _, name := range slices.Sorted(maps.Keys(snap.Tables)) {
		kvs := snap.Tables[name]
		steps = append(steps,
			func() error { return w.WriteUTF(name) },
			func() error { return w.WriteVInt(len(kvs)) },
			func() error {
				for _, kv := range kvs {
					if err := w.WriteBytes(kv.Key); err != nil {
						return err
					}
					if err := w.WriteBytes(kv.Value); err != nil {
						return err
					}
				}
				return nil
			},
		)
	}
	steps = append(steps, func() error { return w.WriteVInt(len(snap.Indexes)) })
	for _, name := range slices.Sorted(maps.Keys(snap.Indexes)) {
		entries := slices.Clone(snap.Indexes[name])
		slices.SortFunc(entries, func(a, b IndexEntry) int { return bytes.Compare(a.Key, b.Key) })
		steps = append(steps,
			func() error { return w.WriteUTF(name) },
			func() error { return w.WriteVInt(len(entries)) },
			func() error {
				for _, e := range entries {
					if err := w.WriteBytes(e.Key); err != nil {
						return err
					}
					if err := w.WriteVInt(len(e.PrimaryKeys)); err != nil {
						return err
					}
					for _, pk := range e.PrimaryKeys {
						if err := w.WriteBytes(pk); err != nil {
							return err
						}
					}
				}
				return nil
			},
		)
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return nil, dberror.Wrap(dberror.ErrStorageEncoding, err, "encoding checkpoint").WithTableSpace(snap.TableSpace)
		}
	}

	var trailer [4]byte
	binary.BigEndian.PutUint32(trailer[:], crc32.ChecksumIEEE(buf.Bytes()))
	buf.Write(trailer[:])
	return buf.Bytes(), nil
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("checkpoint file too short (%d bytes)", len(data))
	}
	body, trailer := data[:len(data)-4], data[len(data)-4:]
	if crc32.ChecksumIEEE(body) != binary.BigEndian.Uint32(trailer) {
		return nil, fmt.Errorf("checkpoint checksum mismatch")
	}

	r := codec.NewBytesReader(body)
	magic, err := r.ReadLong()
	if err != nil {
		return nil, err
	}
	if magic != checkpointMagic {
		return nil, fmt.Errorf("bad checkpoint magic %x", magic)
	}
	version, err := r.ReadVInt()
	if err != nil {
		return nil, err
	}
	if version != checkpointVersion {
		return nil, fmt.Errorf("unsupported checkpoint version %d", version)
	}
	if err := r.SkipFlags(); err != nil {
		return nil, err
	}
	lsn, err := r.ReadVLong()
	if err != nil {
		return nil, err
	}
	tableSpace, err := r.ReadUTF()
	if err != nil {
		return nil, err
	}
	catalogBytes, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	catalog, err := types.DeserializeCatalog(catalogBytes)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		TableSpace: tableSpace,
		LSN:        uint64(lsn),
		Catalog:    catalog,
		Tables:     make(map[string][]KeyValue),
		Indexes:    make(map[string][]IndexEntry),
	}

	ntables, err := r.ReadVInt()
	if err != nil {
		return nil, err
	}
	for range ntables {
		name, err := r.ReadUTF()
		if err != nil {
			return nil, err
		}
		nrows, err := r.ReadVInt()
		if err != nil {
			return nil, err
		}
		kvs := make([]KeyValue, 0, nrows)
		for range nrows {
			key, err := r.ReadBytes()
			if err != nil {
				return nil, err
			}
			value, err := r.ReadBytes()
			if err != nil {
				return nil, err
			}
			kvs = append(kvs, KeyValue{Key: key, Value: value})
		}
		snap.Tables[name] = kvs
	}

	nindexes, err := r.ReadVInt()
	if err != nil {
		return nil, err
	}
	for range nindexes {
		name, err := r.ReadUTF()
		if err != nil {
			return nil, err
		}
		nkeys, err := r.ReadVInt()
		if err != nil {
			return nil, err
		}
		entries := make([]IndexEntry, 0, nkeys)
		for range nkeys {
			key, err := r.ReadBytes()
			if err != nil {
				return nil, err
			}
			npks, err := r.ReadVInt()
			if err != nil {
				return nil, err
			}
			pks := make([][]byte, 0, npks)
			for range npks {
				pk, err := r.ReadBytes()
				if err != nil {
					return nil, err
				}
				pks = append(pks, pk)
			}
			entries = append(entries, IndexEntry{Key: key, PrimaryKeys: pks})
		}
		snap.Indexes[name] = entries
	}

	if !r.AtEOF() {
		return nil, fmt.Errorf("trailing bytes after checkpoint body")
	}
	return snap, nil
}
