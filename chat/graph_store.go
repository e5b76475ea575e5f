package chat

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// PageGraph resolves site pages related to the source documents, used to
// enrich the provenance side-channel. A nil PageGraph skips enrichment.
type PageGraph interface {
	RelatedPages(ctx context.Context, docIDs []string) (map[string][]RelatedPage, error)
}

type Neo4jPageGraph struct {
	driver neo4j.DriverWithContext
}

func NewNeo4jPageGraph(driver neo4j.DriverWithContext) *Neo4jPageGraph {
	return &Neo4jPageGraph{driver: driver}
}

func (g *Neo4jPageGraph) RelatedPages(ctx context.Context, docIDs []string) (map[string][]RelatedPage, error) {
	if g.driver == nil {
		return nil, fmt.Errorf("neo4j driver is nil")
	}
	if len(docIDs) == 0 {
		return map[string][]RelatedPage{}, nil
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (d:Page)
		WHERE d.id IN $ids
		MATCH (d)-[:IN_SECTION]->(section:Section)<-[:IN_SECTION]-(related:Page)
		WHERE related.id <> d.id
		RETURN d.id AS id,
		       collect(DISTINCT {title: related.title, url: related.url}) AS related
	`, map[string]any{"ids": docIDs})
	if err != nil {
		return nil, fmt.Errorf("run related pages query: %w", err)
	}

	related := make(map[string][]RelatedPage, len(docIDs))
	for result.Next(ctx) {
		record := result.Record()

		id, ok := record.Get("id")
		if !ok {
			continue
		}
		docID, ok := id.(string)
		if !ok {
			continue
		}

		raw, ok := record.Get("related")
		if !ok {
			continue
		}
		rows, ok := raw.([]any)
		if !ok {
			continue
		}

		pages := make([]RelatedPage, 0, len(rows))
		for _, row := range rows {
			fields, ok := row.(map[string]any)
			if !ok {
				continue
			}
			page := RelatedPage{}
			if title, ok := fields["title"].(string); ok {
				page.Title = title
			}
			if url, ok := fields["url"].(string); ok {
				page.URL = url
			}
			if page.Title != "" || page.URL != "" {
				pages = append(pages, page)
			}
		}
		related[docID] = pages
	}

	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("iterate related pages: %w", err)
	}

	return related, nil
}

var _ PageGraph = (*Neo4jPageGraph)(nil)
