// Package analytics вычисляет сводные показатели по счетам за электроэнергию.
package analytics

import (
	"fmt"
	"math"

	"github.com/contaluz/energia-system/internal/model"
)

const (
	// maxTrendBars - сколько последних счетов попадает в столбчатый график.
	maxTrendBars = 6
	// minBarHeight - минимальная относительная высота столбца, чтобы счет
	// с нулевым потреблением оставался видимым.
	minBarHeight = 0.1
)

// TrendPoint описывает один столбец графика потребления.
type TrendPoint struct {
	Label  string  `json:"label,omitempty"`
	KWh    float64 `json:"kwh"`
	Height float64 `json:"height"`
}

// Summary содержит сводные показатели, вычисленные по списку счетов.
type Summary struct {
	TotalBills       int     `json:"total_bills"`
	TotalConsumption float64 `json:"total_consumption"`
	TotalCost        float64 `json:"total_cost"`
	AvgCostKWh       float64 `json:"avg_cost_kwh"`
	ChangePercent    float64 `json:"change_percent"`

	ProjectedMonthlyKWh  float64 `json:"projected_monthly_kwh"`
	ProjectedMonthlyCost float64 `json:"projected_monthly_cost"`

	Trends []TrendPoint `json:"trends"`
}

// Aggregate вычисляет сводку по списку счетов, упорядоченному от самого
// нового к самому старому (bills[0] - текущий период). Функция чистая:
// не читает сеть и хранилище, пересчитывает все заново на каждый вызов.
func Aggregate(bills []model.Bill) Summary {
	s := Summary{
		TotalBills: len(bills),
	}

	for _, b := range bills {
		s.TotalConsumption += kwh(b)
		s.TotalCost += cost(b)
	}

	if s.TotalConsumption > 0 {
		s.AvgCostKWh = s.TotalCost / s.TotalConsumption
	}

	s.ChangePercent = changePercent(bills)

	if len(bills) > 0 {
		s.ProjectedMonthlyKWh = s.TotalConsumption / float64(len(bills))
		s.ProjectedMonthlyCost = s.TotalCost / float64(len(bills))
	}

	s.Trends = trendBars(bills)

	return s
}

// changePercent возвращает изменение потребления относительно предыдущего
// периода в процентах с округлением до одного знака. При отсутствии
// предыдущего счета или нулевом потреблении в нем возвращает 0:
// вызывающая сторона всегда получает конечное число.
func changePercent(bills []model.Bill) float64 {
	if len(bills) < 2 {
		return 0
	}

	current := kwh(bills[0])
	previous := kwh(bills[1])
	if previous == 0 {
		return 0
	}

	return math.Round((current-previous)/previous*100*10) / 10
}

// trendBars строит столбцы по не более чем шести последним счетам.
// Высота столбца - отношение потребления к максимуму в выборке,
// не меньше minBarHeight.
func trendBars(bills []model.Bill) []TrendPoint {
	if len(bills) == 0 {
		return nil
	}

	selected := bills
	if len(selected) > maxTrendBars {
		selected = selected[:maxTrendBars]
	}

	maxKWh := 0.0
	for _, b := range selected {
		if v := kwh(b); v > maxKWh {
			maxKWh = v
		}
	}

	points := make([]TrendPoint, 0, len(selected))
	for _, b := range selected {
		p := TrendPoint{
			KWh:    kwh(b),
			Height: minBarHeight,
		}
		if maxKWh > 0 {
			p.Height = math.Max(p.KWh/maxKWh, minBarHeight)
		}
		if b.PeriodStart != nil {
			p.Label = fmt.Sprintf("%02d/%d", int(b.PeriodStart.Month()), b.PeriodStart.Year())
		}
		points = append(points, p)
	}

	return points
}

func kwh(b model.Bill) float64 {
	if b.ConsumoKWh == nil {
		return 0
	}
	return *b.ConsumoKWh
}

func cost(b model.Bill) float64 {
	if b.ValorTotal == nil {
		return 0
	}
	return *b.ValorTotal
}
