package badgerstore

import (
	"bytes"
	"encoding/base64"
	"encoding/gob"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/okvist/partstore/store"
)

// Keys are laid out as base64(partition) + "|" + sort. The base64 step keeps
// the separator out of the partition component, so all keys of one partition
// share a fixed prefix and sort keys order lexicographically within it.

func encodeKey(partition, sort string) []byte {
	return append(partitionPrefix(partition), sort...)
}

func partitionPrefix(partition string) []byte {
	return []byte(base64.StdEncoding.EncodeToString([]byte(partition)) + "|")
}

func decodeKey(encoded []byte) (store.Key, error) {
	parts := strings.SplitN(string(encoded), "|", 2)
	if len(parts) != 2 {
		return store.Key{}, fmt.Errorf("invalid key format %q", encoded)
	}
	partition, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return store.Key{}, fmt.Errorf("decode partition: %w", err)
	}
	return store.Key{Partition: string(partition), Sort: parts[1]}, nil
}

// storedAV is a gob-encodable representation of an attribute value.
type storedAV struct {
	Type  string
	Value any
}

func init() {
	gob.Register(map[string]storedAV{})
	gob.Register([]storedAV{})
	gob.Register([]string{})
	gob.Register([][]byte{})
}

func serializeItem(item store.Item) ([]byte, error) {
	stored := make(map[string]storedAV, len(item))
	for k, v := range item {
		sav, err := toStored(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", k, err)
		}
		stored[k] = sav
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(stored); err != nil {
		return nil, fmt.Errorf("encode item: %w", err)
	}
	return buf.Bytes(), nil
}

func deserializeItem(data []byte) (store.Item, error) {
	var stored map[string]storedAV
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&stored); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	item := make(store.Item, len(stored))
	for k, v := range stored {
		av, err := fromStored(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", k, err)
		}
		item[k] = av
	}
	return item, nil
}

func toStored(av types.AttributeValue) (storedAV, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return storedAV{Type: "S", Value: v.Value}, nil
	case *types.AttributeValueMemberN:
		return storedAV{Type: "N", Value: v.Value}, nil
	case *types.AttributeValueMemberB:
		return storedAV{Type: "B", Value: v.Value}, nil
	case *types.AttributeValueMemberBOOL:
		return storedAV{Type: "BOOL", Value: v.Value}, nil
	case *types.AttributeValueMemberNULL:
		return storedAV{Type: "NULL", Value: v.Value}, nil
	case *types.AttributeValueMemberSS:
		return storedAV{Type: "SS", Value: v.Value}, nil
	case *types.AttributeValueMemberNS:
		return storedAV{Type: "NS", Value: v.Value}, nil
	case *types.AttributeValueMemberBS:
		return storedAV{Type: "BS", Value: v.Value}, nil
	case *types.AttributeValueMemberM:
		m := make(map[string]storedAV, len(v.Value))
		for k, val := range v.Value {
			sav, err := toStored(val)
			if err != nil {
				return storedAV{}, err
			}
			m[k] = sav
		}
		return storedAV{Type: "M", Value: m}, nil
	case *types.AttributeValueMemberL:
		l := make([]storedAV, len(v.Value))
		for i, val := range v.Value {
			sav, err := toStored(val)
			if err != nil {
				return storedAV{}, err
			}
			l[i] = sav
		}
		return storedAV{Type: "L", Value: l}, nil
	default:
		return storedAV{}, fmt.Errorf("unsupported attribute value type %T", av)
	}
}

func fromStored(sav storedAV) (types.AttributeValue, error) {
	switch sav.Type {
	case "S":
		return &types.AttributeValueMemberS{Value: sav.Value.(string)}, nil
	case "N":
		return &types.AttributeValueMemberN{Value: sav.Value.(string)}, nil
	case "B":
		return &types.AttributeValueMemberB{Value: sav.Value.([]byte)}, nil
	case "BOOL":
		return &types.AttributeValueMemberBOOL{Value: sav.Value.(bool)}, nil
	case "NULL":
		return &types.AttributeValueMemberNULL{Value: sav.Value.(bool)}, nil
	case "SS":
		return &types.AttributeValueMemberSS{Value: sav.Value.([]string)}, nil
	case "NS":
		return &types.AttributeValueMemberNS{Value: sav.Value.([]string)}, nil
	case "BS":
		return &types.AttributeValueMemberBS{Value: sav.Value.([][]byte)}, nil
	case "M":
		src := sav.Value.(map[string]storedAV)
		m := make(map[string]types.AttributeValue, len(src))
		for k, v := range src {
			av, err := fromStored(v)
			if err != nil {
				return nil, err
			}
			m[k] = av
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	case "L":
		src := sav.Value.([]storedAV)
		l := make([]types.AttributeValue, len(src))
		for i, v := range src {
			av, err := fromStored(v)
			if err != nil {
				return nil, err
			}
			l[i] = av
		}
		return &types.AttributeValueMemberL{Value: l}, nil
	default:
		return nil, fmt.Errorf("unsupported stored type %q", sav.Type)
	}
}
