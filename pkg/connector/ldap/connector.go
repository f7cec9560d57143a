// Package ldap implements the directory connector over go-ldap.
package ldap

import (
	"context"
	"fmt"
	"strings"

	"codeberg.org/idgov/idgov/pkg/connector"
	"codeberg.org/idgov/idgov/pkg/model"
	"github.com/go-ldap/ldap/v3"
)

const Key = "ldap"

func init() {
	_ = connector.Register(Key, func() connector.Connector { return &Connector{} })
}

type Config struct {
	URL          string
	BindDN       string
	BindPassword string
	BaseDN       string
	StartTLS     bool

	UIDAttribute   string
	TokenAttribute string
	Attributes     []string
}

type Connector struct {
	config *Config
	conn   *ldap.Conn
}

func (c *Connector) Key() string { return Key }

func (c *Connector) Initialize(ctx context.Context, raw map[string]any) error {
	cfg := parseConfig(raw)
	if cfg.URL == "" {
		return fmt.Errorf("ldap connector: url is required")
	}
	if cfg.BaseDN == "" {
		return fmt.Errorf("ldap connector: baseDN is required")
	}

	conn, err := ldap.DialURL(cfg.URL)
	if err != nil {
		return fmt.Errorf("dial ldap: %w", err)
	}
	if cfg.StartTLS {
		if err := conn.StartTLS(nil); err != nil {
			conn.Close()
			return fmt.Errorf("start tls: %w", err)
		}
	}
	if cfg.BindDN != "" {
		if err := conn.Bind(cfg.BindDN, cfg.BindPassword); err != nil {
			conn.Close()
			return fmt.Errorf("bind: %w", err)
		}
	}

	c.config = cfg
	c.conn = conn
	return nil
}

func parseConfig(raw map[string]any) *Config {
	str := func(key string) string {
		v, _ := raw[key].(string)
		return v
	}
	cfg := &Config{
		URL:            str("url"),
		BindDN:         str("bindDn"),
		BindPassword:   str("bindPassword"),
		BaseDN:         str("baseDn"),
		UIDAttribute:   str("uidAttribute"),
		TokenAttribute: str("tokenAttribute"),
	}
	if tls, ok := raw["startTls"].(bool); ok {
		cfg.StartTLS = tls
	}
	if attrs, ok := raw["attributes"].([]any); ok {
		for _, a := range attrs {
			if s, ok := a.(string); ok {
				cfg.Attributes = append(cfg.Attributes, s)
			}
		}
	}
	if cfg.UIDAttribute == "" {
		cfg.UIDAttribute = "uid"
	}
	if cfg.TokenAttribute == "" {
		cfg.TokenAttribute = "modifyTimestamp"
	}
	return cfg
}

func (c *Connector) Validate(ctx context.Context) error {
	if c.conn == nil {
		return fmt.Errorf("ldap connector not initialized")
	}
	req := ldap.NewSearchRequest(
		c.config.BaseDN,
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1, 0, false,
		"(objectClass=*)",
		[]string{"dn"},
		nil,
	)
	if _, err := c.conn.Search(req); err != nil {
		return fmt.Errorf("ldap base search: %w", err)
	}
	return nil
}

func (c *Connector) Execute(ctx context.Context, op connector.Operation) (*connector.OperationResult, error) {
	dn := c.entryDN(op.UID)

	switch op.Type {
	case model.OperationCreate:
		req := ldap.NewAddRequest(dn, nil)
		req.Attribute("objectClass", []string{op.ObjectClass})
		req.Attribute(c.config.UIDAttribute, []string{op.UID})
		for key, value := range op.Attributes {
			req.Attribute(key.Name, attributeValues(value))
		}
		if err := c.conn.Add(req); err != nil {
			// Target-side existence flips the intent to UPDATE; dispatch
			// tolerates the ambiguity.
			if ldap.IsErrorWithCode(err, ldap.LDAPResultEntryAlreadyExists) {
				return c.Execute(ctx, connector.Operation{
					Type:        model.OperationUpdate,
					SystemID:    op.SystemID,
					ObjectClass: op.ObjectClass,
					UID:         op.UID,
					Attributes:  op.Attributes,
				})
			}
			return nil, fmt.Errorf("ldap add %s: %w", dn, err)
		}
		return &connector.OperationResult{UID: op.UID, Executed: model.OperationCreate}, nil

	case model.OperationUpdate:
		req := ldap.NewModifyRequest(dn, nil)
		for key, value := range op.Attributes {
			req.Replace(key.Name, attributeValues(value))
		}
		if err := c.conn.Modify(req); err != nil {
			if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
				return c.Execute(ctx, connector.Operation{
					Type:        model.OperationCreate,
					SystemID:    op.SystemID,
					ObjectClass: op.ObjectClass,
					UID:         op.UID,
					Attributes:  op.Attributes,
				})
			}
			return nil, fmt.Errorf("ldap modify %s: %w", dn, err)
		}
		return &connector.OperationResult{UID: op.UID, Executed: model.OperationUpdate}, nil

	case model.OperationDelete:
		if err := c.conn.Del(ldap.NewDelRequest(dn, nil)); err != nil {
			return nil, fmt.Errorf("ldap delete %s: %w", dn, err)
		}
		return &connector.OperationResult{UID: op.UID, Executed: model.OperationDelete}, nil

	default:
		return nil, fmt.Errorf("unsupported operation type %s", op.Type)
	}
}

func (c *Connector) Search(ctx context.Context, objectClass string, filter *connector.Filter, handler connector.ResultHandler) error {
	return c.stream(objectClass, c.searchFilter(objectClass, filter), model.DeltaCreateOrUpdate, handler)
}

func (c *Connector) Synchronize(ctx context.Context, objectClass, token string, handler connector.ResultHandler) error {
	f := fmt.Sprintf("(objectClass=%s)", ldap.EscapeFilter(objectClass))
	if token != "" {
		f = fmt.Sprintf("(&%s(%s>=%s))", f, c.config.TokenAttribute, ldap.EscapeFilter(token))
	}
	return c.stream(objectClass, f, model.DeltaCreateOrUpdate, handler)
}

func (c *Connector) stream(objectClass, filter string, delta model.DeltaType, handler connector.ResultHandler) error {
	attrs := c.config.Attributes
	if len(attrs) == 0 {
		attrs = []string{"*", c.config.TokenAttribute}
	}
	req := ldap.NewSearchRequest(
		c.config.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		attrs,
		nil,
	)

	res, err := c.conn.Search(req)
	if err != nil {
		return fmt.Errorf("ldap search: %w", err)
	}

	for _, entry := range res.Entries {
		rec := connector.ExternalRecord{
			UID:         entry.GetAttributeValue(c.config.UIDAttribute),
			Delta:       delta,
			ObjectClass: objectClass,
			Attributes:  entryAttributes(entry),
			Token:       entry.GetAttributeValue(c.config.TokenAttribute),
		}
		if rec.UID == "" {
			rec.UID = entry.DN
		}
		if !handler(rec) {
			return nil
		}
	}
	return nil
}

func (c *Connector) searchFilter(objectClass string, filter *connector.Filter) string {
	base := fmt.Sprintf("(objectClass=%s)", ldap.EscapeFilter(objectClass))
	if filter == nil {
		return base
	}
	if filter.Expression != "" {
		return fmt.Sprintf("(&%s%s)", base, filter.Expression)
	}

	value := ldap.EscapeFilter(filter.Value)
	var clause string
	switch filter.Operator {
	case model.FilterContains:
		clause = fmt.Sprintf("(%s=*%s*)", filter.Attribute, value)
	case model.FilterStartsWith:
		clause = fmt.Sprintf("(%s=%s*)", filter.Attribute, value)
	case model.FilterEndsWith:
		clause = fmt.Sprintf("(%s=*%s)", filter.Attribute, value)
	case model.FilterGreaterThan:
		clause = fmt.Sprintf("(%s>=%s)", filter.Attribute, value)
	case model.FilterLessThan:
		clause = fmt.Sprintf("(%s<=%s)", filter.Attribute, value)
	default:
		clause = fmt.Sprintf("(%s=%s)", filter.Attribute, value)
	}
	return fmt.Sprintf("(&%s%s)", base, clause)
}

func (c *Connector) entryDN(uid string) string {
	if strings.Contains(uid, "=") {
		return uid
	}
	return fmt.Sprintf("%s=%s,%s", c.config.UIDAttribute, ldap.EscapeDN(uid), c.config.BaseDN)
}

func entryAttributes(entry *ldap.Entry) map[string]any {
	attrs := make(map[string]any, len(entry.Attributes))
	for _, a := range entry.Attributes {
		if len(a.Values) == 1 {
			attrs[a.Name] = a.Values[0]
			continue
		}
		values := make([]any, len(a.Values))
		for i, v := range a.Values {
			values[i] = v
		}
		attrs[a.Name] = values
	}
	attrs["dn"] = entry.DN
	return attrs
}

func attributeValues(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return []string{val}
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	default:
		return []string{fmt.Sprintf("%v", val)}
	}
}

func (c *Connector) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
