package grid

import "fluxgrid.ai/internal/protocol"

// Event constructors. Each returns (type, fields) for Grid.appendEvent;
// the journal adds seq and ms.

func evStatusChanged(from, to Status, entity Handle) (string, map[string]any) {
	return protocol.EvStatusChanged, map[string]any{
		"entity": string(entity),
		"from":   string(from),
		"to":     string(to),
	}
}

func evSourceStarted(s *Source) (string, map[string]any) {
	return protocol.EvSourceStarted, map[string]any{
		"source":     string(s.handle),
		"production": s.energy.CurrentProduction(),
	}
}

func evSourceStopped(s *Source) (string, map[string]any) {
	return protocol.EvSourceStopped, map[string]any{
		"source": string(s.handle),
	}
}

func evReserved(s *Source, a *Assembly, amount int64) (string, map[string]any) {
	return protocol.EvReserved, map[string]any{
		"source":      string(s.handle),
		"consumer":    string(a.handle),
		"amount":      amount,
		"total_after": s.energy.ReservedTotal(),
	}
}

func evReleased(s *Source, a *Assembly, amount int64) (string, map[string]any) {
	return protocol.EvReleased, map[string]any{
		"source":      string(s.handle),
		"consumer":    string(a.handle),
		"amount":      amount,
		"total_after": s.energy.ReservedTotal(),
	}
}

func evConsumerConnected(source, consumer Handle) (string, map[string]any) {
	return protocol.EvConsumerConnected, map[string]any{
		"source":   string(source),
		"consumer": string(consumer),
	}
}

func evConsumerDisconnected(source, consumer Handle) (string, map[string]any) {
	return protocol.EvConsumerDisconnected, map[string]any{
		"source":   string(source),
		"consumer": string(consumer),
	}
}

func evOrphaned(source, consumer Handle) (string, map[string]any) {
	return protocol.EvOrphaned, map[string]any{
		"source":   string(source),
		"consumer": string(consumer),
	}
}

func evFuelDeposited(source Handle, fuelType string, amount, quantity int64) (string, map[string]any) {
	return protocol.EvFuelDeposited, map[string]any{
		"source":    string(source),
		"fuel_type": fuelType,
		"amount":    amount,
		"quantity":  quantity,
	}
}

func evFuelWithdrawn(source Handle, amount, quantity int64) (string, map[string]any) {
	return protocol.EvFuelWithdrawn, map[string]any{
		"source":   string(source),
		"amount":   amount,
		"quantity": quantity,
	}
}

func evBurningStarted(source Handle, f *FuelTank) (string, map[string]any) {
	return protocol.EvBurningStarted, map[string]any{
		"source":      string(source),
		"fuel_type":   f.FuelType(),
		"quantity":    f.Quantity(),
		"interval_ms": f.EffectiveIntervalMs(),
	}
}

func evBurningStopped(source Handle, f *FuelTank) (string, map[string]any) {
	return protocol.EvBurningStopped, map[string]any{
		"source":   string(source),
		"quantity": f.Quantity(),
	}
}

func evFuelUpdated(source Handle, f *FuelTank, consumed int64) (string, map[string]any) {
	return protocol.EvFuelUpdated, map[string]any{
		"source":      string(source),
		"consumed":    consumed,
		"quantity":    f.Quantity(),
		"leftover_ms": f.LeftoverMs(),
		"burning":     f.Burning(),
	}
}
