package internal

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// DefaultInspectLimit bounds a single page of the inspector.
const DefaultInspectLimit = 200

const inspectTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>chat-core inspector</title>
<style>
body { font-family: monospace; margin: 1.5em; }
table { border-collapse: collapse; width: 100%; }
td, th { border-bottom: 1px solid #ddd; padding: 4px 8px; text-align: left; }
.stats span { margin-right: 2em; }
</style>
</head>
<body>
<form method="get"><input name="prefix" value="{{.Prefix}}" size="40"> <button>Scan</button></form>
<p class="stats">{{range $k, $v := .Stats}}<span><b>{{$k}}</b> {{$v}}</span>{{end}}</p>
<table>
<tr><th>Type</th><th>Scope</th><th>Time</th><th>Entity</th><th>Detail</th></tr>
{{range .Items}}<tr title="{{.Key}}"><td>{{.Type}}</td><td>{{.Namespace}}</td><td>{{.Timestamp}}</td><td>{{.EntityID}}</td><td>{{.Detail}}</td></tr>
{{end}}</table>
</body>
</html>`

type InspectRow struct {
	Key       string
	Type      string
	Timestamp string
	EntityID  string
	Namespace string
	Detail    string
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
}

// NewInspectHandler serves an HTML listing of the keys under the "prefix"
// query parameter. The database is only read.
func NewInspectHandler(db *badger.DB, mapper RowMapper, statsProvider StatsProvider) http.Handler {
	tmpl := template.Must(template.New("inspect").Parse(inspectTemplate))
	if mapper == nil {
		mapper = DefaultMapper
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/inspect", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "room:"
		}

		data := PageData{
			Prefix: prefix,
			Stats:  make(map[string]any),
		}
		if statsProvider != nil {
			data.Stats = statsProvider()
		}

		rows, err := Scan(db, prefix, DefaultInspectLimit, mapper)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		data.Items = rows

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})
	return mux
}

// Scan maps at most limit entries under prefix, in key order.
func Scan(db *badger.DB, prefix string, limit int, mapper RowMapper) ([]InspectRow, error) {
	if mapper == nil {
		mapper = DefaultMapper
	}
	rows := make([]InspectRow, 0)
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)) && len(rows) < limit; it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				rows = append(rows, mapper(string(item.KeyCopy(nil)), val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %q: %w", prefix, err)
	}
	return rows, nil
}

// DefaultMapper understands the {kind}:{scope}:{unixnano}:{id} layout of
// messages and notifications and falls back to the raw key otherwise.
func DefaultMapper(key string, val []byte) InspectRow {
	parts := strings.Split(key, ":")
	row := InspectRow{
		Key:       key,
		Type:      strings.ToUpper(parts[0]),
		Timestamp: "--:--:--",
		EntityID:  "--------",
		Namespace: "-",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}

	switch len(parts) {
	case 4:
		row.Namespace = unescape(parts[1])
		if tsNano, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
			row.Timestamp = time.Unix(0, tsNano).UTC().Format(time.DateTime)
		}
		row.EntityID = short(parts[3])
	case 3:
		row.Namespace = unescape(parts[1])
		row.EntityID = short(unescape(parts[2]))
	case 2:
		row.EntityID = short(unescape(parts[1]))
	}

	var fields map[string]any
	if json.Unmarshal(val, &fields) != nil {
		return row
	}
	for _, name := range []string{"content", "name", "display_name", "title", "status"} {
		if v, ok := fields[name].(string); ok && v != "" {
			row.Detail = v
			break
		}
	}
	return row
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
