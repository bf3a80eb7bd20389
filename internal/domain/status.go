package domain

// StoreStatus is the verification snapshot returned by the health/status
// query: object counts a monitoring tool can compare against expectations.
type StoreStatus struct {
	Tables            int64 `json:"tables"`
	Partitions        int64 `json:"partitions"`
	MaterializedViews int64 `json:"materialized_views"`
	FactRows          int64 `json:"fact_rows"`
	DateEntities      int64 `json:"date_entities"`
	ProductEntities   int64 `json:"product_entities"`
	CustomerEntities  int64 `json:"customer_entities"`
	QuarantineRows    int64 `json:"quarantine_rows"`
}

// TableUniqueness is one line of the duplicate audit: total rows versus
// distinct natural/business keys for a warehouse relation.
type TableUniqueness struct {
	Table      string `json:"table"`
	TotalRows  int64  `json:"total_rows"`
	UniqueRows int64  `json:"unique_rows"`
	Duplicates int64  `json:"duplicates"`
}
