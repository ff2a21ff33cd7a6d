package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/cache"
	"github.com/Juddanxavier/track-sub003/internal/constants"
	"github.com/Juddanxavier/track-sub003/internal/repository"
)

const (
	dashboardCacheTTL        = 45 * time.Second
	dashboardCustomMaxDays   = 90
	dashboardCarrierRowLimit = 10
)

// DashboardService 仪表盘服务
// 说明：聚合后台首页运营数据，结果短缓存。
type DashboardService struct {
	repo repository.DashboardRepository
}

// NewDashboardService 创建仪表盘服务
func NewDashboardService(repo repository.DashboardRepository) *DashboardService {
	return &DashboardService{repo: repo}
}

// DashboardQueryInput 仪表盘查询输入
type DashboardQueryInput struct {
	Range        string
	From         *time.Time
	To           *time.Time
	Timezone     string
	ForceRefresh bool
}

// DashboardOverviewResponse 仪表盘总览响应
type DashboardOverviewResponse struct {
	Range    string          `json:"range"`
	From     string          `json:"from"`
	To       string          `json:"to"`
	Timezone string          `json:"timezone"`
	KPI      DashboardKPI    `json:"kpi"`
	Funnel   DashboardFunnel `json:"funnel"`
}

// DashboardKPI 仪表盘核心指标
type DashboardKPI struct {
	ShipmentsTotal     int64  `json:"shipments_total"`
	ShipmentsActive    int64  `json:"shipments_active"`
	ShipmentsDelivered int64  `json:"shipments_delivered"`
	ShipmentsException int64  `json:"shipments_exception"`
	ShipmentsCancelled int64  `json:"shipments_cancelled"`
	DeliveryRate       string `json:"delivery_rate"`
	NeedsReview        int64  `json:"needs_review"`
	TrackingUnassigned int64  `json:"tracking_unassigned"`
	LeadsTotal         int64  `json:"leads_total"`
	LeadsConverted     int64  `json:"leads_converted"`
	UsersTotal         int64  `json:"users_total"`
	UsersInvited       int64  `json:"users_invited"`
}

// DashboardFunnel 线索转化漏斗
type DashboardFunnel struct {
	New            int64  `json:"new"`
	Contacted      int64  `json:"contacted"`
	Qualified      int64  `json:"qualified"`
	Converted      int64  `json:"converted"`
	Closed         int64  `json:"closed"`
	ConversionRate string `json:"conversion_rate"`
}

// DashboardTrendResponse 运单趋势响应
type DashboardTrendResponse struct {
	Range    string                `json:"range"`
	From     string                `json:"from"`
	To       string                `json:"to"`
	Timezone string                `json:"timezone"`
	Points   []DashboardTrendPoint `json:"points"`
}

// DashboardTrendPoint 趋势点
type DashboardTrendPoint struct {
	Date               string `json:"date"`
	ShipmentsCreated   int64  `json:"shipments_created"`
	ShipmentsDelivered int64  `json:"shipments_delivered"`
}

// DashboardCarrierResponse 承运商分布响应
type DashboardCarrierResponse struct {
	Range    string                 `json:"range"`
	From     string                 `json:"from"`
	To       string                 `json:"to"`
	Timezone string                 `json:"timezone"`
	Carriers []DashboardCarrierItem `json:"carriers"`
}

// DashboardCarrierItem 承运商分布项
type DashboardCarrierItem struct {
	Courier        string `json:"courier"`
	ShipmentsTotal int64  `json:"shipments_total"`
	DeliveredCount int64  `json:"delivered_count"`
	ExceptionCount int64  `json:"exception_count"`
	ExceptionRate  string `json:"exception_rate"`
}

type dashboardWindow struct {
	rangeKey string
	startAt  time.Time
	endAt    time.Time
	timezone string
}

// GetOverview 获取仪表盘总览
func (s *DashboardService) GetOverview(ctx context.Context, input DashboardQueryInput) (*DashboardOverviewResponse, error) {
	if s == nil || s.repo == nil {
		return &DashboardOverviewResponse{}, nil
	}

	window, err := resolveDashboardWindow(input, time.Now())
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("dashboard:overview:%s:%d:%d:%s",
		window.rangeKey,
		window.startAt.Unix(),
		window.endAt.Unix(),
		window.timezone,
	)
	if !input.ForceRefresh {
		var cached DashboardOverviewResponse
		hit, cacheErr := cache.GetJSON(ctx, cacheKey, &cached)
		if cacheErr == nil && hit {
			return &cached, nil
		}
	}

	overview, err := s.repo.GetOverview(window.startAt, window.endAt)
	if err != nil {
		return nil, err
	}
	funnel, err := s.repo.GetLeadFunnel()
	if err != nil {
		return nil, err
	}

	deliveryRate := 0.0
	if overview.ShipmentsTotal > 0 {
		deliveryRate = float64(overview.ShipmentsDelivered) / float64(overview.ShipmentsTotal) * 100
	}

	response := &DashboardOverviewResponse{
		Range:    window.rangeKey,
		From:     window.startAt.Format(time.RFC3339),
		To:       window.endAt.Add(-time.Second).Format(time.RFC3339),
		Timezone: window.timezone,
		KPI: DashboardKPI{
			ShipmentsTotal:     overview.ShipmentsTotal,
			ShipmentsActive:    overview.ShipmentsActive,
			ShipmentsDelivered: overview.ShipmentsDelivered,
			ShipmentsException: overview.ShipmentsException,
			ShipmentsCancelled: overview.ShipmentsCancelled,
			DeliveryRate:       formatPercentValue(deliveryRate),
			NeedsReview:        overview.NeedsReview,
			TrackingUnassigned: overview.TrackingUnassigned,
			LeadsTotal:         overview.LeadsTotal,
			LeadsConverted:     overview.LeadsConverted,
			UsersTotal:         overview.UsersTotal,
			UsersInvited:       overview.UsersInvited,
		},
		Funnel: buildDashboardFunnel(funnel),
	}

	_ = cache.SetJSON(ctx, cacheKey, response, dashboardCacheTTL)
	return response, nil
}

// GetTrends 获取运单趋势
func (s *DashboardService) GetTrends(ctx context.Context, input DashboardQueryInput) (*DashboardTrendResponse, error) {
	if s == nil || s.repo == nil {
		return &DashboardTrendResponse{}, nil
	}

	window, err := resolveDashboardWindow(input, time.Now())
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("dashboard:trends:%s:%d:%d:%s", window.rangeKey, window.startAt.Unix(), window.endAt.Unix(), window.timezone)
	if !input.ForceRefresh {
		var cached DashboardTrendResponse
		hit, cacheErr := cache.GetJSON(ctx, cacheKey, &cached)
		if cacheErr == nil && hit {
			return &cached, nil
		}
	}

	rows, err := s.repo.GetShipmentTrends(window.startAt, window.endAt)
	if err != nil {
		return nil, err
	}
	rowMap := make(map[string]repository.DashboardShipmentTrendRow, len(rows))
	for _, item := range rows {
		rowMap[item.Day] = item
	}

	points := make([]DashboardTrendPoint, 0)
	for cursor := time.Date(window.startAt.Year(), window.startAt.Month(), window.startAt.Day(), 0, 0, 0, 0, window.startAt.Location()); cursor.Before(window.endAt); cursor = cursor.AddDate(0, 0, 1) {
		day := cursor.Format("2006-01-02")
		item := rowMap[day]
		points = append(points, DashboardTrendPoint{
			Date:               day,
			ShipmentsCreated:   item.ShipmentsCreated,
			ShipmentsDelivered: item.ShipmentsDelivered,
		})
	}

	response := &DashboardTrendResponse{
		Range:    window.rangeKey,
		From:     window.startAt.Format(time.RFC3339),
		To:       window.endAt.Add(-time.Second).Format(time.RFC3339),
		Timezone: window.timezone,
		Points:   points,
	}

	_ = cache.SetJSON(ctx, cacheKey, response, dashboardCacheTTL)
	return response, nil
}

// GetCarrierBreakdown 获取承运商分布
func (s *DashboardService) GetCarrierBreakdown(ctx context.Context, input DashboardQueryInput) (*DashboardCarrierResponse, error) {
	if s == nil || s.repo == nil {
		return &DashboardCarrierResponse{}, nil
	}

	window, err := resolveDashboardWindow(input, time.Now())
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("dashboard:carriers:%s:%d:%d:%s", window.rangeKey, window.startAt.Unix(), window.endAt.Unix(), window.timezone)
	if !input.ForceRefresh {
		var cached DashboardCarrierResponse
		hit, cacheErr := cache.GetJSON(ctx, cacheKey, &cached)
		if cacheErr == nil && hit {
			return &cached, nil
		}
	}

	rows, err := s.repo.GetCarrierBreakdown(window.startAt, window.endAt, dashboardCarrierRowLimit)
	if err != nil {
		return nil, err
	}

	carriers := make([]DashboardCarrierItem, 0, len(rows))
	for _, item := range rows {
		rate := 0.0
		if item.ShipmentsTotal > 0 {
			rate = float64(item.ExceptionCount) / float64(item.ShipmentsTotal) * 100
		}
		carriers = append(carriers, DashboardCarrierItem{
			Courier:        strings.TrimSpace(item.Courier),
			ShipmentsTotal: item.ShipmentsTotal,
			DeliveredCount: item.DeliveredCount,
			ExceptionCount: item.ExceptionCount,
			ExceptionRate:  formatPercentValue(rate),
		})
	}

	response := &DashboardCarrierResponse{
		Range:    window.rangeKey,
		From:     window.startAt.Format(time.RFC3339),
		To:       window.endAt.Add(-time.Second).Format(time.RFC3339),
		Timezone: window.timezone,
		Carriers: carriers,
	}

	_ = cache.SetJSON(ctx, cacheKey, response, dashboardCacheTTL)
	return response, nil
}

func buildDashboardFunnel(counts map[string]int64) DashboardFunnel {
	funnel := DashboardFunnel{
		New:       counts[constants.LeadStatusNew],
		Contacted: counts[constants.LeadStatusContacted],
		Qualified: counts[constants.LeadStatusQualified],
		Converted: counts[constants.LeadStatusConverted],
		Closed:    counts[constants.LeadStatusClosed],
	}
	total := funnel.New + funnel.Contacted + funnel.Qualified + funnel.Converted + funnel.Closed
	rate := 0.0
	if total > 0 {
		rate = float64(funnel.Converted) / float64(total) * 100
	}
	funnel.ConversionRate = formatPercentValue(rate)
	return funnel
}

func resolveDashboardWindow(input DashboardQueryInput, now time.Time) (dashboardWindow, error) {
	rangeKey := strings.ToLower(strings.TrimSpace(input.Range))
	if rangeKey == "" {
		rangeKey = "7d"
	}

	timezone := strings.TrimSpace(input.Timezone)
	location := time.Local
	if timezone != "" {
		if parsed, err := time.LoadLocation(timezone); err == nil {
			location = parsed
		} else {
			timezone = ""
		}
	}
	if timezone == "" {
		timezone = location.String()
	}

	localNow := now.In(location)
	todayStart := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, location)
	window := dashboardWindow{rangeKey: rangeKey, timezone: timezone}

	switch rangeKey {
	case "today":
		window.startAt = todayStart
		window.endAt = todayStart.AddDate(0, 0, 1)
	case "7d":
		window.startAt = todayStart.AddDate(0, 0, -6)
		window.endAt = todayStart.AddDate(0, 0, 1)
	case "30d":
		window.startAt = todayStart.AddDate(0, 0, -29)
		window.endAt = todayStart.AddDate(0, 0, 1)
	case "custom":
		if input.From == nil || input.To == nil {
			return dashboardWindow{}, ErrDashboardRangeInvalid
		}
		startAt := input.From.In(location)
		endAt := input.To.In(location)
		if endAt.Before(startAt) {
			return dashboardWindow{}, ErrDashboardRangeInvalid
		}
		if endAt.Sub(startAt) > time.Hour*24*dashboardCustomMaxDays {
			return dashboardWindow{}, ErrDashboardRangeInvalid
		}
		window.startAt = startAt
		window.endAt = endAt.Add(time.Second)
	default:
		return dashboardWindow{}, ErrDashboardRangeInvalid
	}

	if !window.endAt.After(window.startAt) {
		return dashboardWindow{}, ErrDashboardRangeInvalid
	}
	return window, nil
}

func formatPercentValue(value float64) string {
	return fmt.Sprintf("%.2f", value)
}
