package mocks

//go:generate mockgen -destination=./mock_gateway.go -package=mocks github.com/rxtech-lab/argo-futures/internal/gateway Gateway,Broker,SnapshotListener
//go:generate mockgen -destination=./mock_marketdata.go -package=mocks github.com/rxtech-lab/argo-futures/internal/marketdata Feed,Source
//go:generate mockgen -destination=./mock_strategy.go -package=mocks github.com/rxtech-lab/argo-futures/internal/strategy Strategy
//go:generate mockgen -destination=./mock_session.go -package=mocks github.com/rxtech-lab/argo-futures/internal/session Provider
