package profile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MrEthical07/authstate"
)

// CurrentSchemaVersion is the leading byte of every record written by Encode.
const CurrentSchemaVersion = 1

const (
	planByteFree     = 0
	planByteFullPurc = 1

	flagHasPurchasedApp  = 1 << 0
	flagCloudSyncEnabled = 1 << 1
	flagAutoCloudSync    = 1 << 2
)

// ErrCorrupt is returned for a record that cannot be decoded.
var ErrCorrupt = errors.New("profile record corrupt")

// Encode serializes p. Layout (big endian):
//
//	version u8 | idLen u8 | id | emailLen u8 | email | credits i64 |
//	plan u8 | flags u8 | deletionDays u32 | createdAt unix-ms i64
func Encode(p authstate.Profile) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(p.ID) > 255 {
		return nil, errors.New("profile id too long")
	}
	if len(p.Email) > 255 {
		return nil, errors.New("profile email too long")
	}

	var buf bytes.Buffer
	buf.Grow(2 + len(p.ID) + 1 + len(p.Email) + 8 + 2 + 4 + 8)

	buf.WriteByte(CurrentSchemaVersion)
	buf.WriteByte(byte(len(p.ID)))
	buf.WriteString(p.ID)
	buf.WriteByte(byte(len(p.Email)))
	buf.WriteString(p.Email)

	if err := binary.Write(&buf, binary.BigEndian, p.Credits); err != nil {
		return nil, err
	}

	plan := byte(planByteFree)
	if p.Plan == authstate.PlanFullPurchase {
		plan = planByteFullPurc
	}
	buf.WriteByte(plan)

	var flags byte
	if p.HasPurchasedApp {
		flags |= flagHasPurchasedApp
	}
	if p.CloudSyncEnabled {
		flags |= flagCloudSyncEnabled
	}
	if p.AutoCloudSync {
		flags |= flagAutoCloudSync
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, uint32(p.DeletionPolicyDays)); err != nil {
		return nil, err
	}

	var created int64
	if !p.CreatedAt.IsZero() {
		created = p.CreatedAt.UnixMilli()
	}
	if err := binary.Write(&buf, binary.BigEndian, created); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a record written by Encode.
func Decode(data []byte) (authstate.Profile, error) {
	var p authstate.Profile
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return p, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if version != CurrentSchemaVersion {
		return p, fmt.Errorf("%w: unsupported profile schema version %d", ErrCorrupt, version)
	}

	id, err := readShortString(reader)
	if err != nil {
		return p, err
	}
	email, err := readShortString(reader)
	if err != nil {
		return p, err
	}
	p.ID = id
	p.Email = email

	if err := binary.Read(reader, binary.BigEndian, &p.Credits); err != nil {
		return p, fmt.Errorf("%w: credits: %v", ErrCorrupt, err)
	}

	plan, err := reader.ReadByte()
	if err != nil {
		return p, fmt.Errorf("%w: plan: %v", ErrCorrupt, err)
	}
	switch plan {
	case planByteFree:
		p.Plan = authstate.PlanFree
	case planByteFullPurc:
		p.Plan = authstate.PlanFullPurchase
	default:
		return p, fmt.Errorf("%w: unknown plan byte %d", ErrCorrupt, plan)
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return p, fmt.Errorf("%w: flags: %v", ErrCorrupt, err)
	}
	p.HasPurchasedApp = flags&flagHasPurchasedApp != 0
	p.CloudSyncEnabled = flags&flagCloudSyncEnabled != 0
	p.AutoCloudSync = flags&flagAutoCloudSync != 0

	var days uint32
	if err := binary.Read(reader, binary.BigEndian, &days); err != nil {
		return p, fmt.Errorf("%w: deletion days: %v", ErrCorrupt, err)
	}
	p.DeletionPolicyDays = int(days)

	var created int64
	if err := binary.Read(reader, binary.BigEndian, &created); err != nil {
		return p, fmt.Errorf("%w: created at: %v", ErrCorrupt, err)
	}
	if created != 0 {
		p.CreatedAt = time.UnixMilli(created).UTC()
	}

	if reader.Len() != 0 {
		return p, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, reader.Len())
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return p, nil
}

func readShortString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return string(b), nil
}
