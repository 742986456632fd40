package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/skosovsky/toolloop"
)

type weatherRequest struct {
	Location string `json:"location"`
}

var weatherSchema = toolloop.MustDeclare[weatherRequest](toolloop.Object(
	toolloop.Required("location", toolloop.String(toolloop.Description("The city"))),
))

// DeliveryLookupData identifies the order whose delivery date is requested.
type DeliveryLookupData struct {
	OrderID string `json:"order_id" description:"The customer's order ID."`
}

// ShippingEstimateRequest is the input of calculate_shipping_cost.
type ShippingEstimateRequest struct {
	Weight       float64  `json:"weight"`
	Priority     bool     `json:"priority"`
	DeliveryType string   `json:"delivery_type,omitempty"`
	Extras       []string `json:"extras,omitempty"`
}

var shippingSchema = toolloop.MustDeclare[ShippingEstimateRequest](toolloop.Object(
	toolloop.Required("weight", toolloop.Number(
		toolloop.Description("The weight of the package in kilograms"),
		toolloop.Minimum("0"),
	)),
	toolloop.Required("priority", toolloop.Boolean(
		toolloop.Description("Whether this should be a priority delivery"),
	)),
	toolloop.Optional("delivery_type", toolloop.String(
		toolloop.Description("The type of delivery requested."),
		toolloop.Enum("standard", "express", "overnight"),
		toolloop.Default("standard"),
	)),
	toolloop.Optional("extras", toolloop.Array(toolloop.String(),
		toolloop.Description("A list of extra features requested by the customer"),
		toolloop.MinItems(1),
	)),
))

// demoTools returns the tools offered to the model. Their answers are canned.
func demoTools(logger *slog.Logger) ([]toolloop.Tool, error) {
	weather, err := toolloop.NewTool("get_weather", "Get the current weather for a city.", weatherSchema,
		func(ctx context.Context, req weatherRequest) (string, error) {
			logger.InfoContext(ctx, "mocking weather lookup", "location", req.Location)
			return fmt.Sprintf("Here's the weather in %s: 32°C", req.Location), nil
		}, toolloop.WithTags("weather"))
	if err != nil {
		return nil, err
	}

	delivery, err := toolloop.NewReflectedTool("get_delivery_date",
		"Get the delivery date for a customer's order. Call this whenever you need to know the delivery date, "+
			"for example when a customer asks 'Where is my package'",
		func(ctx context.Context, req DeliveryLookupData) (string, error) {
			logger.InfoContext(ctx, "mocking delivery lookup", "order_id", req.OrderID)
			return "Delivery date: 2021-01-15", nil
		}, toolloop.WithTags("orders", "delivery"))
	if err != nil {
		return nil, err
	}

	shipping, err := toolloop.NewTool("calculate_shipping_cost", "Estimate shipping cost for a customer's order.", shippingSchema,
		func(ctx context.Context, req ShippingEstimateRequest) (string, error) {
			if req.DeliveryType == "" {
				req.DeliveryType = "standard"
			}
			logger.InfoContext(ctx, "mocking shipping estimate",
				"weight", req.Weight, "priority", req.Priority, "delivery_type", req.DeliveryType, "extras", req.Extras)
			return "Shipping cost: $20", nil
		}, toolloop.WithTags("orders", "shipping"))
	if err != nil {
		return nil, err
	}

	return []toolloop.Tool{weather, delivery, shipping}, nil
}
