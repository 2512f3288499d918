package appointment

import "fmt"

// convenienceFeePercent applies to in-person consultations, which are paid
// at the clinic except for this fee.
const convenienceFeePercent = 5

// ComputeCost prices a consultation. Online bookings pay the full online
// fee. In-person bookings pay only a convenience fee of 5% of the in-person
// fee, rounded half up, while the consultation fee is shown for reference.
func ComputeCost(d *Doctor, ct ConsultationType, currency string) (Cost, error) {
	switch ct {
	case ConsultationOnline:
		if d.OnlineFee <= 0 {
			return Cost{}, fmt.Errorf("%w: online", ErrFeeNotConfigured)
		}
		return Cost{
			ConsultationFee: d.OnlineFee,
			ConvenienceFee:  0,
			TotalAmount:     d.OnlineFee,
			Currency:        currency,
		}, nil
	case ConsultationInPerson:
		if d.InPersonFee <= 0 {
			return Cost{}, fmt.Errorf("%w: in-person", ErrFeeNotConfigured)
		}
		conv := (d.InPersonFee*convenienceFeePercent + 50) / 100
		return Cost{
			ConsultationFee: d.InPersonFee,
			ConvenienceFee:  conv,
			TotalAmount:     conv,
			Currency:        currency,
		}, nil
	default:
		return Cost{}, fmt.Errorf("%w: unknown consultation type %q", ErrValidation, ct)
	}
}
