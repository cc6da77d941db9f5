package density

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
)

type Class int

const (
	Ignored Class = iota
	Building
	Barrier
)

var barrierKeys = []string{"highway", "waterway", "railway", "aeroway"}

func get[V any](m map[string]any, key string) (V, bool) {
	var r V
	value, ok := m[key]
	if !ok {
		return r, false
	}
	r, ok = value.(V)
	return r, ok
}

// asObject accepts a decoded object or a JSON encoded one.
func asObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, s := range t {
			m[k] = s
		}
		return m, true
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(t), &m); err != nil {
			logrus.Warnf("unreadable tags %q: %s", t, err)
			return map[string]any{}, false
		}
		return m, true
	}
	return nil, false
}

// Tags finds the OSM tags in feature properties. They may sit under a
// "tags" member, possibly JSON encoded and possibly nested once more under
// "tags", or be the properties themselves. Malformed tags yield an empty
// set.
func Tags(properties map[string]any) map[string]any {
	tags := properties
	if raw, ok := properties["tags"]; ok {
		if tags, ok = asObject(raw); !ok {
			return map[string]any{}
		}
	}
	if inner, ok := tags["tags"]; ok {
		if m, ok := asObject(inner); ok {
			return m
		}
		return map[string]any{}
	}
	if tags == nil {
		return map[string]any{}
	}
	return tags
}

// Classify routes a feature by its tags: building=yes is a building, any
// highway, waterway, railway or aeroway key is a barrier, everything else
// is ignored.
func Classify(tags map[string]any) Class {
	if v, ok := get[string](tags, "building"); ok && v == "yes" {
		return Building
	}
	for _, k := range barrierKeys {
		if _, ok := tags[k]; ok {
			return Barrier
		}
	}
	return Ignored
}
