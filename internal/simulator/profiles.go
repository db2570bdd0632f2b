package simulator

// roomTargetTemperatures is the heating set point per hour of day, in °C.
var roomTargetTemperatures = [24]float64{
	18, 18, 19, 18, 19, 18, 19, 20, 21, 24, 24, 25,
	24, 25, 25, 25, 26, 25, 25, 24, 23, 22, 21, 20,
}

// warmwaterProfile is the relative warm water draw per hour of day.
var warmwaterProfile = [24]float64{
	50, 25, 10, 10, 5, 20, 250, 350, 320, 290, 280, 310,
	250, 230, 225, 160, 125, 160, 200, 220, 260, 130, 140, 120,
}

// warmwaterPerResident is the daily warm water heat demand per resident in
// kWh (about 40 l heated by 45 K).
const warmwaterPerResident = 2.1

// electricalDemand is the building's electrical load per quarter hour, in kW.
var electricalDemand = [96]float64{
	3.6, 3.4, 3.3, 3.2, 3.1, 3.0, 3.0, 2.9, // 00:00
	2.9, 2.8, 2.8, 2.8, 2.8, 2.8, 2.9, 2.9, // 02:00
	3.0, 3.1, 3.3, 3.6, 4.1, 4.8, 5.6, 6.3, // 04:00
	6.9, 7.3, 7.4, 7.3, 7.0, 6.6, 6.3, 6.0, // 06:00
	5.8, 5.7, 5.6, 5.6, 5.6, 5.7, 5.9, 6.1, // 08:00
	6.4, 6.7, 6.9, 7.0, 6.9, 6.6, 6.3, 6.0, // 10:00
	5.8, 5.6, 5.5, 5.5, 5.5, 5.6, 5.8, 6.0, // 12:00
	6.3, 6.7, 7.2, 7.8, 8.4, 8.9, 9.2, 9.4, // 14:00
	9.5, 9.5, 9.4, 9.2, 8.9, 8.6, 8.2, 7.8, // 16:00
	7.5, 7.2, 7.0, 6.8, 6.6, 6.4, 6.2, 6.0, // 18:00
	5.8, 5.6, 5.4, 5.2, 5.0, 4.8, 4.6, 4.4, // 20:00
	4.3, 4.2, 4.1, 4.0, 3.9, 3.8, 3.7, 3.6, // 22:00
}

// demandVariation scales electricalDemand per hour of day.
var demandVariation = [24]float64{
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
}

func warmwaterShare(hour int) float64 {
	var sum float64
	for _, v := range warmwaterProfile {
		sum += v
	}
	return warmwaterProfile[hour] / sum
}
