// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package zhmc

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "zhmc"

// StatsCollector is a prometheus.Collector exposing the time statistics of a
// session. Values are read from the keeper at scrape time.
//
// Example:
//
//	prometheus.MustRegister(zhmc.NewStatsCollector(session.Stats()))
type StatsCollector struct {
	keeper *TimeStatsKeeper

	count *prometheus.Desc
	sum   *prometheus.Desc
	min   *prometheus.Desc
	max   *prometheus.Desc
}

// NewStatsCollector returns a collector for the given keeper
func NewStatsCollector(keeper *TimeStatsKeeper) *StatsCollector {
	labels := []string{"operation"}
	return &StatsCollector{
		keeper: keeper,
		count: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "request", "count"),
			"Number of HMC requests per operation.",
			labels, nil),
		sum: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "request", "seconds_sum"),
			"Total time spent in HMC requests per operation.",
			labels, nil),
		min: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "request", "seconds_min"),
			"Shortest HMC request per operation.",
			labels, nil),
		max: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "request", "seconds_max"),
			"Longest HMC request per operation.",
			labels, nil),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.count
	ch <- c.sum
	ch <- c.min
	ch <- c.max
}

// Collect is part of the prometheus.Collector interface.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	for _, st := range c.keeper.Snapshot() {
		ch <- prometheus.MustNewConstMetric(c.count, prometheus.CounterValue, float64(st.Count), st.Name)
		ch <- prometheus.MustNewConstMetric(c.sum, prometheus.CounterValue, st.Sum.Seconds(), st.Name)
		ch <- prometheus.MustNewConstMetric(c.min, prometheus.GaugeValue, st.Min.Seconds(), st.Name)
		ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, st.Max.Seconds(), st.Name)
	}
}
