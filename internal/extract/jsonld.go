package extract

import (
	"encoding/json"
	"strings"

	"golang.org/x/net/html"

	"github.com/sells-group/prospector/internal/model"
)

// entityTypes are the schema.org types whose properties map onto entity
// fields. Anything else (BreadcrumbList, WebSite, ...) is ignored.
var entityTypes = map[string]bool{
	"LocalBusiness":               true,
	"Organization":                true,
	"Corporation":                 true,
	"Store":                       true,
	"Restaurant":                  true,
	"ProfessionalService":         true,
	"HomeAndConstructionBusiness": true,
	"MedicalBusiness":             true,
	"AutomotiveBusiness":          true,
}

// extractJSONLD pulls entity fields from application/ld+json script blocks.
// Malformed blocks are skipped; the first matching entity node wins, later
// blocks only fill fields it left empty.
func extractJSONLD(doc *html.Node) map[string]string {
	fields := make(map[string]string)
	for _, raw := range jsonldScripts(doc) {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			continue
		}
		walkJSONLD(v, fields)
	}
	return fields
}

func jsonldScripts(n *html.Node) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" {
			for _, a := range n.Attr {
				if a.Key == "type" && strings.EqualFold(strings.TrimSpace(a.Val), "application/ld+json") {
					if n.FirstChild != nil {
						out = append(out, n.FirstChild.Data)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// walkJSONLD descends arrays and @graph containers looking for entity nodes.
func walkJSONLD(v any, fields map[string]string) {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			walkJSONLD(item, fields)
		}
	case map[string]any:
		if graph, ok := t["@graph"]; ok {
			walkJSONLD(graph, fields)
		}
		if isEntityNode(t) {
			mergeEntityNode(t, fields)
		}
	}
}

func isEntityNode(node map[string]any) bool {
	switch t := node["@type"].(type) {
	case string:
		return entityTypes[t]
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && entityTypes[s] {
				return true
			}
		}
	}
	return false
}

// mergeEntityNode copies known properties into fields, keeping values already
// present from earlier blocks.
func mergeEntityNode(node map[string]any, fields map[string]string) {
	set := func(key, val string) {
		val = strings.TrimSpace(val)
		if val != "" && fields[key] == "" {
			fields[key] = val
		}
	}

	set(model.FieldName, str(node["name"]))
	set(model.FieldPhone, str(node["telephone"]))
	set(model.FieldEmail, strings.TrimPrefix(str(node["email"]), "mailto:"))
	set(model.FieldWebsite, str(node["url"]))
	set(model.FieldPrice, str(node["priceRange"]))

	switch addr := node["address"].(type) {
	case map[string]any:
		set(model.FieldAddress, str(addr["streetAddress"]))
		set(model.FieldCity, str(addr["addressLocality"]))
		set(model.FieldRegion, str(addr["addressRegion"]))
	case string:
		set(model.FieldAddress, addr)
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
