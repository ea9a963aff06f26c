package permissions

import (
	"fmt"
	"sort"

	"github.com/FuelRats/api.fuelrats.com-sub000/pkg/apierrors"
)

// Tier is the write-authorization level required for one resource field.
type Tier string

const (
	TierAll      Tier = "all"      // any caller may write
	TierSelf     Tier = "self"     // owner of the record, or group write
	TierGroup    Tier = "group"    // <resource>.write permission
	TierSudo     Tier = "sudo"     // sudo permission only
	TierInternal Tier = "internal" // never writable through the API
)

// Field pairs a field name with its required tier.
type Field struct {
	Name string
	Tier Tier
}

// FieldPermissions is the ordered field-tier map for one resource type.
// Order is declaration order so rejection always reports the same offending
// field for the same payload.
type FieldPermissions struct {
	resource string
	fields   []Field
	index    map[string]Tier
}

func NewFieldPermissions(resource string, fields ...Field) FieldPermissions {
	index := make(map[string]Tier, len(fields))
	for _, f := range fields {
		index[f.Name] = f.Tier
	}
	return FieldPermissions{resource: resource, fields: fields, index: index}
}

func (fp FieldPermissions) Resource() string { return fp.resource }

func (fp FieldPermissions) tierAllowed(tier Tier, perms Set, isSelf bool) bool {
	write := NewSet(fp.resource+".write", "sudo")
	switch tier {
	case TierAll:
		return true
	case TierSelf:
		if isSelf && Granted(NewSet(fp.resource+".write.me"), perms) {
			return true
		}
		return Granted(write, perms)
	case TierGroup:
		return Granted(write, perms)
	case TierSudo:
		return Granted(NewSet("sudo"), perms)
	default: // TierInternal and anything unknown
		return false
	}
}

// Validate checks every field in the write payload against its tier. The
// whole request is rejected on the first failure (declaration order), so a
// write is always all-or-nothing. isSelf is the collaborator-supplied
// ownership predicate for the target record.
func (fp FieldPermissions) Validate(perms Set, isSelf bool, payload map[string]any) error {
	for _, f := range fp.fields {
		if _, present := payload[f.Name]; !present {
			continue
		}
		if !fp.tierAllowed(f.Tier, perms, isSelf) {
			return apierrors.Forbidden(
				fmt.Sprintf("insufficient permission to write field %q", f.Name),
			).WithPointer("/data/attributes/" + f.Name)
		}
	}
	var unknown []string
	for name := range payload {
		if _, known := fp.index[name]; !known {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return apierrors.Unprocessable(
			fmt.Sprintf("unknown field %q for resource %q", unknown[0], fp.resource),
		).WithPointer("/data/attributes/" + unknown[0])
	}
	return nil
}
