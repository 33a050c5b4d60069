package main

import (
	"flag"
	"os"

	"cloud.google.com/go/bigquery"
	"github.com/m-lab/go/cloud/bqx"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/shapebench/pkg/experiment/model"
)

var (
	correlatedSchema string
	aggregatedSchema string
)

func init() {
	flag.StringVar(&correlatedSchema, "correlated", "/var/spool/datatypes/shapebench_correlated.json", "filename to write the correlated record schema")
	flag.StringVar(&aggregatedSchema, "aggregated", "/var/spool/datatypes/shapebench_aggregated.json", "filename to write the aggregated point schema")
}

func writeSchema(v interface{}, name, path string) {
	sch, err := bigquery.InferSchema(v)
	rtx.Must(err, "failed to generate %s schema", name)
	sch = bqx.RemoveRequired(sch)
	b, err := sch.ToJSONFields()
	rtx.Must(err, "failed to marshal %s schema", name)
	err = os.WriteFile(path, b, 0o644)
	rtx.Must(err, "failed to write %s schema", name)
}

func main() {
	flag.Parse()
	// Generate and save schemas for autoloading.
	writeSchema(model.CorrelatedRecord{}, "correlated", correlatedSchema)
	writeSchema(model.AggregatedPoint{}, "aggregated", aggregatedSchema)
}
