package pool

import "github.com/GoBlaze/blazert/constants"

const cacheLinePadSize = constants.CacheLinePadSize
