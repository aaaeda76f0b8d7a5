package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	recoveryRecordVersionV1 = 1
	maxRecoveryRetries      = 4
)

var (
	ErrRecoveryCodeInvalid      = errors.New("recovery code invalid")
	ErrRecoveryCodeExpired      = errors.New("recovery code expired")
	ErrRecoveryRedisUnavailable = errors.New("recovery redis unavailable")
	ErrRecoveryStoreContention  = errors.New("recovery store contention")
)

type RecoveryRecord struct {
	Code            string
	Username        string
	TenantDomain    string
	UserStoreDomain string
	Scenario        string
	Step            string
	RemainingSetIDs string
	CreatedAt       int64
}

// RecoveryStore keeps one record per code plus a per-account index of the
// codes issued to that account. Store replaces every indexed code inside a
// WATCH transaction on the index key.
type RecoveryStore struct {
	redis     redis.UniversalClient
	prefix    string
	codeTTL   time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewRecoveryStore(redisClient redis.UniversalClient, prefix string, codeTTL, retention time.Duration) *RecoveryStore {
	if prefix == "" {
		prefix = "arc"
	}
	if codeTTL <= 0 {
		codeTTL = 15 * time.Minute
	}
	if retention < 0 {
		retention = 0
	}
	return &RecoveryStore{
		redis:     redisClient,
		prefix:    prefix,
		codeTTL:   codeTTL,
		retention: retention,
		now:       time.Now,
	}
}

func (s *RecoveryStore) codeKey(code string) string {
	return s.prefix + ":code:" + code
}

func (s *RecoveryStore) accountKey(tenantDomain, userStoreDomain, username string) string {
	return s.prefix + ":acct:" + keyPart(tenantDomain) + ":" + strings.ToUpper(keyPart(userStoreDomain)) + ":" + username
}

func keyPart(v string) string {
	if v == "" {
		return "-"
	}
	return v
}

// Store invalidates every code indexed for the record's account and writes the
// new record. Concurrent callers for the same account serialize on the index.
func (s *RecoveryStore) Store(ctx context.Context, record *RecoveryRecord) error {
	encoded, err := encodeRecoveryRecord(record)
	if err != nil {
		return err
	}

	acctKey := s.accountKey(record.TenantDomain, record.UserStoreDomain, record.Username)
	ttl := s.codeTTL + s.retention

	return s.withAccountTx(ctx, acctKey, func(pipe redis.Pipeliner) {
		pipe.Set(ctx, s.codeKey(record.Code), encoded, ttl)
		pipe.SAdd(ctx, acctKey, record.Code)
		pipe.Expire(ctx, acctKey, ttl)
	})
}

// Invalidate deletes every code indexed for the account.
func (s *RecoveryStore) Invalidate(ctx context.Context, tenantDomain, userStoreDomain, username string) error {
	acctKey := s.accountKey(tenantDomain, userStoreDomain, username)
	return s.withAccountTx(ctx, acctKey, nil)
}

func (s *RecoveryStore) withAccountTx(ctx context.Context, acctKey string, write func(redis.Pipeliner)) error {
	for i := 0; i < maxRecoveryRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			codes, err := tx.SMembers(ctx, acctKey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, code := range codes {
					pipe.Del(ctx, s.codeKey(code))
				}
				pipe.Del(ctx, acctKey)
				if write != nil {
					write(pipe)
				}
				return nil
			})
			return err
		}, acctKey)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRecoveryRedisUnavailable, err)
		}
		return nil
	}

	return ErrRecoveryStoreContention
}

// Load returns the record for code. Records past the code TTL stay readable
// for the retention period so they can be reported as expired.
func (s *RecoveryStore) Load(ctx context.Context, code string) (*RecoveryRecord, error) {
	data, err := s.redis.Get(ctx, s.codeKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecoveryCodeInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrRecoveryRedisUnavailable, err)
	}

	record, err := decodeRecoveryRecord(data)
	if err != nil {
		return nil, err
	}
	if s.now().After(time.Unix(0, record.CreatedAt).Add(s.codeTTL)) {
		return nil, ErrRecoveryCodeExpired
	}

	return record, nil
}

func encodeRecoveryRecord(record *RecoveryRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recoveryRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}

	for _, field := range []string{
		record.Code,
		record.Username,
		record.TenantDomain,
		record.UserStoreDomain,
		record.Scenario,
		record.Step,
		record.RemainingSetIDs,
	} {
		if err := writeString(&buf, field); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func decodeRecoveryRecord(data []byte) (*RecoveryRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recoveryRecordVersionV1 {
		return nil, errors.New("invalid recovery record version")
	}

	record := &RecoveryRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}

	for _, field := range []*string{
		&record.Code,
		&record.Username,
		&record.TenantDomain,
		&record.UserStoreDomain,
		&record.Scenario,
		&record.Step,
		&record.RemainingSetIDs,
	} {
		if *field, err = readString(reader); err != nil {
			return nil, err
		}
	}

	return record, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 65535 {
		return errors.New("recovery record field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
