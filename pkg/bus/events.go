package bus

type CommandId uint8

const (
	OrderCommand CommandId = iota
	CancelCommand
	AdvanceCommand
	CloseCommand
)

func (id CommandId) String() string {
	switch id {
	case OrderCommand:
		return "order"
	case CancelCommand:
		return "cancel"
	case AdvanceCommand:
		return "advance"
	case CloseCommand:
		return "close"
	}
	return "unknown"
}
