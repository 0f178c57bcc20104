package fixtures

import (
	"github.com/home-express/finance-core/internal/model"
)

const (
	CustomerID  int64 = 100
	TransportID int64 = 7
	ManagerID   int64 = 1

	AgreedPrice    int64 = 1_000_000
	DepositAmount  int64 = 300_000
	Remaining      int64 = 700_000
	PlatformFee    int64 = 100_000
	NetToTransport int64 = 900_000
)

var (
	Customer  = model.Actor{ID: CustomerID, Role: model.ActorCustomer}
	Transport = model.Actor{ID: TransportID, Role: model.ActorTransport}
	Manager   = model.Actor{ID: ManagerID, Role: model.ActorManager}

	BankDetails = model.BankDetails{
		BankCode:      "VCB",
		BankName:      "Vietcombank",
		AccountNumber: "0011000123456",
		AccountHolder: "NGUYEN VAN A",
	}
)

func AcceptQuotation(bookingID, price int64) map[string]any {
	return map[string]any{
		"quotation_id": 900 + bookingID,
		"transport_id": TransportID,
		"final_price":  price,
		"actor_id":     CustomerID,
		"actor_role":   model.ActorCustomer,
	}
}

func TransportActor() map[string]any {
	return map[string]any{"actor_id": TransportID, "actor_role": model.ActorTransport}
}

func CashPayment(key string) map[string]any {
	return map[string]any{"method": model.PaymentMethodCash, "idempotency_key": key}
}

func BankTransfer(key string) map[string]any {
	return map[string]any{"method": model.PaymentMethodBankTransfer, "idempotency_key": key}
}
