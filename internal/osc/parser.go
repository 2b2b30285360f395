package osc

import (
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/osm"
)

// Parser parses OSC (OSM Change) files
type Parser struct {
	stats Stats
}

// NewParser creates a new OSC parser
func NewParser() *Parser {
	return &Parser{}
}

// Stats returns parsing statistics. Read it after the change channel is
// drained.
func (p *Parser) Stats() Stats {
	return p.stats
}

// ParseFile parses an OSC file and streams changes to a channel
// Supports both plain XML and gzip-compressed files
func (p *Parser) ParseFile(ctx context.Context, filename string) (<-chan Change, <-chan error) {
	changes := make(chan Change, 1000)
	errChan := make(chan error, 1)

	go func() {
		defer close(changes)
		defer close(errChan)

		f, err := os.Open(filename)
		if err != nil {
			errChan <- fmt.Errorf("failed to open OSC file: %w", err)
			return
		}
		defer f.Close()

		var reader io.Reader = f
		if strings.HasSuffix(filename, ".gz") {
			gzReader, err := gzip.NewReader(f)
			if err != nil {
				errChan <- fmt.Errorf("failed to create gzip reader: %w", err)
				return
			}
			defer gzReader.Close()
			reader = gzReader
		}

		if err := p.parse(ctx, reader, changes); err != nil {
			errChan <- err
		}
	}()

	return changes, errChan
}

// ParseReader parses OSC data from a reader
func (p *Parser) ParseReader(ctx context.Context, reader io.Reader) (<-chan Change, <-chan error) {
	changes := make(chan Change, 1000)
	errChan := make(chan error, 1)

	go func() {
		defer close(changes)
		defer close(errChan)

		if err := p.parse(ctx, reader, changes); err != nil {
			errChan <- err
		}
	}()

	return changes, errChan
}

// parse performs the actual XML parsing
func (p *Parser) parse(ctx context.Context, reader io.Reader, changes chan<- Change) error {
	decoder := xml.NewDecoder(reader)
	var currentAction Action

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		token, err := decoder.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("XML parse error: %w", err)
		}

		se, ok := token.(xml.StartElement)
		if !ok {
			continue
		}

		var obj osm.Object
		switch se.Name.Local {
		case "create":
			currentAction = ActionCreate
		case "modify":
			currentAction = ActionModify
		case "delete":
			currentAction = ActionDelete
		case "node":
			obj, err = parseNode(decoder, se, currentAction)
		case "way":
			obj, err = parseWay(decoder, se, currentAction)
		case "relation":
			obj, err = parseRelation(decoder, se, currentAction)
		}
		if err != nil {
			return err
		}
		if obj == nil {
			continue
		}

		change := Change{Action: currentAction, Object: obj}
		select {
		case changes <- change:
			p.stats.add(currentAction, change.Type())
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// meta holds the attributes shared by all element types.
type meta struct {
	id        int64
	version   int
	changeset int64
	timestamp time.Time
	user      string
	uid       int64
	lat, lon  float64
}

func parseMeta(start xml.StartElement) (meta, error) {
	var m meta
	for _, attr := range start.Attr {
		var err error
		switch attr.Name.Local {
		case "id":
			m.id, err = strconv.ParseInt(attr.Value, 10, 64)
		case "lat":
			m.lat, err = strconv.ParseFloat(attr.Value, 64)
		case "lon":
			m.lon, err = strconv.ParseFloat(attr.Value, 64)
		case "version":
			m.version, err = strconv.Atoi(attr.Value)
		case "changeset":
			m.changeset, err = strconv.ParseInt(attr.Value, 10, 64)
		case "timestamp":
			m.timestamp, err = time.Parse(time.RFC3339, attr.Value)
		case "user":
			m.user = attr.Value
		case "uid":
			m.uid, err = strconv.ParseInt(attr.Value, 10, 64)
		}
		if err != nil {
			return m, fmt.Errorf("%s %s: invalid %s %q: %w", start.Name.Local, idAttr(start), attr.Name.Local, attr.Value, err)
		}
	}
	return m, nil
}

func idAttr(start xml.StartElement) string {
	for _, attr := range start.Attr {
		if attr.Name.Local == "id" {
			return attr.Value
		}
	}
	return "?"
}

func parseTag(se xml.StartElement) (osm.Tag, bool) {
	var t osm.Tag
	for _, attr := range se.Attr {
		switch attr.Name.Local {
		case "k":
			t.Key = attr.Value
		case "v":
			t.Value = attr.Value
		}
	}
	return t, t.Key != ""
}

// children walks the child elements of the element named name, calling fn
// for each start element, until its end element.
func children(decoder *xml.Decoder, name string, fn func(xml.StartElement) error) error {
	for {
		token, err := decoder.Token()
		if err != nil {
			return fmt.Errorf("XML parse error in %s: %w", name, err)
		}
		switch se := token.(type) {
		case xml.StartElement:
			if fn != nil {
				if err := fn(se); err != nil {
					return err
				}
			}
		case xml.EndElement:
			if se.Name.Local == name {
				return nil
			}
		}
	}
}

// parseNode parses a node element
func parseNode(decoder *xml.Decoder, start xml.StartElement, action Action) (*osm.Node, error) {
	m, err := parseMeta(start)
	if err != nil {
		return nil, err
	}
	node := &osm.Node{
		ID:          osm.NodeID(m.id),
		Lat:         m.lat,
		Lon:         m.lon,
		Version:     m.version,
		ChangesetID: osm.ChangesetID(m.changeset),
		Timestamp:   m.timestamp,
		User:        m.user,
		UserID:      osm.UserID(m.uid),
		Visible:     action != ActionDelete,
	}

	err = children(decoder, "node", func(se xml.StartElement) error {
		if se.Name.Local == "tag" && action != ActionDelete {
			if t, ok := parseTag(se); ok {
				node.Tags = append(node.Tags, t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// parseWay parses a way element
func parseWay(decoder *xml.Decoder, start xml.StartElement, action Action) (*osm.Way, error) {
	m, err := parseMeta(start)
	if err != nil {
		return nil, err
	}
	way := &osm.Way{
		ID:          osm.WayID(m.id),
		Version:     m.version,
		ChangesetID: osm.ChangesetID(m.changeset),
		Timestamp:   m.timestamp,
		User:        m.user,
		UserID:      osm.UserID(m.uid),
		Visible:     action != ActionDelete,
	}

	err = children(decoder, "way", func(se xml.StartElement) error {
		if action == ActionDelete {
			return nil
		}
		switch se.Name.Local {
		case "nd":
			for _, attr := range se.Attr {
				if attr.Name.Local == "ref" {
					ref, err := strconv.ParseInt(attr.Value, 10, 64)
					if err != nil {
						return fmt.Errorf("way %d: invalid nd ref %q: %w", m.id, attr.Value, err)
					}
					way.Nodes = append(way.Nodes, osm.WayNode{ID: osm.NodeID(ref)})
				}
			}
		case "tag":
			if t, ok := parseTag(se); ok {
				way.Tags = append(way.Tags, t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return way, nil
}

// parseRelation parses a relation element
func parseRelation(decoder *xml.Decoder, start xml.StartElement, action Action) (*osm.Relation, error) {
	m, err := parseMeta(start)
	if err != nil {
		return nil, err
	}
	rel := &osm.Relation{
		ID:          osm.RelationID(m.id),
		Version:     m.version,
		ChangesetID: osm.ChangesetID(m.changeset),
		Timestamp:   m.timestamp,
		User:        m.user,
		UserID:      osm.UserID(m.uid),
		Visible:     action != ActionDelete,
	}

	err = children(decoder, "relation", func(se xml.StartElement) error {
		if action == ActionDelete {
			return nil
		}
		switch se.Name.Local {
		case "member":
			var member osm.Member
			for _, attr := range se.Attr {
				switch attr.Name.Local {
				case "type":
					member.Type = osm.Type(attr.Value)
				case "ref":
					ref, err := strconv.ParseInt(attr.Value, 10, 64)
					if err != nil {
						return fmt.Errorf("relation %d: invalid member ref %q: %w", m.id, attr.Value, err)
					}
					member.Ref = ref
				case "role":
					member.Role = attr.Value
				}
			}
			switch member.Type {
			case osm.TypeNode, osm.TypeWay, osm.TypeRelation:
			default:
				return fmt.Errorf("relation %d: invalid member type %q", m.id, member.Type)
			}
			rel.Members = append(rel.Members, member)
		case "tag":
			if t, ok := parseTag(se); ok {
				rel.Tags = append(rel.Tags, t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rel, nil
}
