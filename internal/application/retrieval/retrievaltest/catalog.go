// Package retrievaltest 提供测试用的小型核电站检索目录
package retrievaltest

import (
	"github.com/marshnicholas123/nlq-demo/internal/application/retrieval"
	domain "github.com/marshnicholas123/nlq-demo/internal/domain/retrieval"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
)

// Sources 三个小集合，均不带向量
func Sources() *retrieval.Sources {
	doc := func(source, table, section, content string) domain.Document {
		return domain.Document{Content: content, Source: source, Table: table, Section: section}
	}
	row := func(table, content string) domain.Document {
		return domain.Document{Content: content, Source: "sample_data", Table: table}
	}

	return &retrieval.Sources{
		Schema: &domain.Collection{
			Name: "schema",
			Documents: []domain.Document{
				doc("schema", "nuclear_power_plants", "columns",
					"Table nuclear_power_plants: Id, Name, CountryCode, StatusId, ReactorTypeId, Capacity"),
				doc("schema", "countries", "columns",
					"Table countries: id (country code), name"),
				doc("schema", "nuclear_power_plant_status_types", "columns",
					"Table nuclear_power_plant_status_types: Id, Type (operational status)"),
			},
		},
		BusinessRules: &domain.Collection{
			Name: "business_rules",
			Documents: []domain.Document{
				doc("business_rules", "nuclear_power_plants", "operational",
					"Operational plants are those with StatusId = 3"),
				doc("business_rules", "nuclear_power_plants", "capacity",
					"Capacity is measured in megawatts, use SUM(Capacity) for total capacity"),
				doc("business_rules", "countries", "codes",
					"Country codes follow ISO 3166 alpha-2, join on countries.id"),
				doc("business_rules", "nuclear_reactor_types", "types",
					"Reactor designs such as PWR and BWR are stored in nuclear_reactor_types"),
			},
		},
		SampleData: &domain.Collection{
			Name: "sample_data",
			Documents: []domain.Document{
				row("countries", "id: FR | name: France"),
				row("countries", "id: CN | name: China"),
				row("nuclear_power_plants", "Name: Flamanville | CountryCode: FR | StatusId: 3"),
				row("nuclear_power_plants", "Name: Taishan | CountryCode: CN | StatusId: 3"),
			},
		},
	}
}

// RetrievalConfig 测试用检索配置
func RetrievalConfig() *config.RetrievalConfig {
	return &config.RetrievalConfig{
		KeywordWeight:      retrieval.DefaultKeywordWeight,
		SemanticWeight:     retrieval.DefaultSemanticWeight,
		TopK:               retrieval.DefaultTopK,
		KeywordK:           retrieval.DefaultKeywordK,
		SemanticK:          retrieval.DefaultSemanticK,
		SampleRowsPerTable: 3,
		TableHints: map[string][]string{
			"nuclear_power_plants": {"plant", "plants", "reactor", "capacity", "operational"},
			"countries":            {"country", "countries", "nation"},
		},
	}
}

// Catalog 关键词检索可用、语义检索不可用的目录
func Catalog() *retrieval.Catalog {
	return retrieval.NewCatalog(Sources(), nil, RetrievalConfig())
}
