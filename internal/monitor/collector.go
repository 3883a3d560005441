package monitor

import (
	"strconv"

	"github.com/KevinKickass/OpenFieldSim/internal/snapshot"
	"github.com/KevinKickass/OpenFieldSim/internal/types"
	"github.com/prometheus/client_golang/prometheus"
)

// SpeedSource reports the global simulation speed.
type SpeedSource interface {
	Speed() float64
}

// Collector implements prometheus.Collector over the latest snapshot of every
// device. Values are read at scrape time, nothing is cached.
type Collector struct {
	exporter *snapshot.Exporter
	speed    SpeedSource

	power         *prometheus.Desc
	healthy       *prometheus.Desc
	faultCode     *prometheus.Desc
	dailyYield    *prometheus.Desc
	totalYield    *prometheus.Desc
	soc           *prometheus.Desc
	chargedEnergy *prometheus.Desc
	carConnected  *prometheus.Desc
	info          *prometheus.Desc
	simSpeed      *prometheus.Desc
}

func NewCollector(exporter *snapshot.Exporter, speed SpeedSource) *Collector {
	deviceLabels := []string{"kind", "id"}

	return &Collector{
		exporter: exporter,
		speed:    speed,
		power: prometheus.NewDesc(
			"openfieldsim_device_power_watts",
			"Active power (PV) or charging power (wallbox) in watts",
			[]string{"kind", "id", "state"},
			nil,
		),
		healthy: prometheus.NewDesc(
			"openfieldsim_device_healthy",
			"Whether the last simulation tick of the device succeeded",
			deviceLabels,
			nil,
		),
		faultCode: prometheus.NewDesc(
			"openfieldsim_device_fault_code",
			"Active fault code of the device (0 = none)",
			deviceLabels,
			nil,
		),
		dailyYield: prometheus.NewDesc(
			"openfieldsim_pv_daily_yield_wh",
			"Energy fed in since the start of the day in watt-hours",
			deviceLabels,
			nil,
		),
		totalYield: prometheus.NewDesc(
			"openfieldsim_pv_total_yield_kwh",
			"Energy fed in since process start in kilowatt-hours",
			deviceLabels,
			nil,
		),
		soc: prometheus.NewDesc(
			"openfieldsim_wallbox_soc_percent",
			"Vehicle state of charge in percent",
			deviceLabels,
			nil,
		),
		chargedEnergy: prometheus.NewDesc(
			"openfieldsim_wallbox_charged_energy_wh",
			"Energy charged in the current session in watt-hours",
			deviceLabels,
			nil,
		),
		carConnected: prometheus.NewDesc(
			"openfieldsim_wallbox_car_connected",
			"Vehicle connected (1=yes, 0=no)",
			deviceLabels,
			nil,
		),
		info: prometheus.NewDesc(
			"openfieldsim_device_info",
			"Simulated device information",
			[]string{"kind", "id", "address", "status"},
			nil,
		),
		simSpeed: prometheus.NewDesc(
			"openfieldsim_simulation_speed",
			"Global simulation speed scalar",
			nil,
			nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.power
	ch <- c.healthy
	ch <- c.faultCode
	ch <- c.dailyYield
	ch <- c.totalYield
	ch <- c.soc
	ch <- c.chargedEnergy
	ch <- c.carConnected
	ch <- c.info
	ch <- c.simSpeed
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.simSpeed, prometheus.GaugeValue, c.speed.Speed())

	for _, e := range c.exporter.List() {
		c.collectDevice(e, ch)
	}
}

func (c *Collector) collectDevice(e snapshot.Entry, ch chan<- prometheus.Metric) {
	kind, id := string(e.Key.Kind), strconv.Itoa(e.Key.ID)

	healthy := 0.0
	if e.Healthy() {
		healthy = 1.0
	}

	ch <- prometheus.MustNewConstMetric(c.info, prometheus.GaugeValue, 1, kind, id, e.Address, e.Status)
	ch <- prometheus.MustNewConstMetric(c.healthy, prometheus.GaugeValue, healthy, kind, id)
	ch <- prometheus.MustNewConstMetric(c.power, prometheus.GaugeValue, e.Power, kind, id, e.State)
	ch <- prometheus.MustNewConstMetric(c.faultCode, prometheus.GaugeValue, float64(e.FaultCode), kind, id)

	switch e.Key.Kind {
	case types.DeviceKindPV:
		ch <- prometheus.MustNewConstMetric(c.dailyYield, prometheus.GaugeValue, e.Values["daily_yield"], kind, id)
		ch <- prometheus.MustNewConstMetric(c.totalYield, prometheus.CounterValue, e.Values["total_yield"], kind, id)
	case types.DeviceKindWallbox:
		ch <- prometheus.MustNewConstMetric(c.soc, prometheus.GaugeValue, e.Values["soc"], kind, id)
		ch <- prometheus.MustNewConstMetric(c.chargedEnergy, prometheus.GaugeValue, e.Values["charged_energy"], kind, id)
		ch <- prometheus.MustNewConstMetric(c.carConnected, prometheus.GaugeValue, e.Values["car_connected"], kind, id)
	}
}
